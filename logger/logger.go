// Package logger provides structured logging with automatic credential
// redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Client Step remote call logging (requests, responses, errors)
//   - Automatic API key and sensitive data redaction
//   - Contextual logging with request tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// currentLevel is the level the global logger was last (re)initialized with.
	currentLevel slog.Level

	// currentFormat is the active output format, FormatJSON or FormatText.
	currentFormat = FormatText

	// logOutput is the writer the global logger writes to.
	logOutput io.Writer = os.Stderr

	// customHandler is set by SetLogger when the caller supplies their own
	// slog.Logger, preventing SetLevel/Configure from silently replacing it.
	customHandler slog.Handler
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	if envFormat := os.Getenv("LOG_FORMAT"); strings.EqualFold(envFormat, FormatJSON) {
		currentFormat = FormatJSON
	}

	initLogger(level, nil)
}

// initLogger (re)builds DefaultLogger from currentFormat/logOutput, wrapping
// a fresh base handler with a plain ContextHandler (no per-module levels).
func initLogger(level slog.Level, commonFields []slog.Attr) {
	currentLevel = level

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if currentFormat == FormatJSON {
		baseHandler = slog.NewJSONHandler(logOutput, opts)
	} else {
		baseHandler = slog.NewTextHandler(logOutput, opts)
	}

	handler := NewContextHandler(baseHandler, commonFields...)
	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
// If a custom logger was set via SetLogger, SetLevel leaves it in place.
func SetLevel(level slog.Level) {
	if customHandler != nil {
		return
	}
	initLogger(level, nil)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects the global logger's output. Passing nil resets it to
// stderr. The active format (text or JSON) is preserved.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	if customHandler == nil {
		initLogger(currentLevel, nil)
	}
}

// SetLogger replaces DefaultLogger with a caller-supplied *slog.Logger.
// Subsequent calls to SetLevel/Configure leave it untouched until SetLogger
// is called again with nil, which restores the package-managed logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		customHandler = nil
		initLogger(currentLevel, nil)
		return
	}
	DefaultLogger = l
	customHandler = l.Handler()
	slog.SetDefault(DefaultLogger)
}

// ParseLevel converts a level name (case-insensitive) to a slog.Level.
// Recognized names are "trace", "debug", "info", "warn"/"warning", and
// "error"; anything else (including an empty string) defaults to
// slog.LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
// The context can be used for request tracing and cancellation.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is set to LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
// Use for errors that affect operation but don't cause complete failure.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// RPCCall logs a Client Step remote call with structured fields for observability.
// target identifies the remote service, shape is the step's declared Shape
// (e.g. "UNARY_UNARY"). Additional attributes can be passed as key-value
// pairs after the required parameters.
func RPCCall(target, shape string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "target", target, "shape", shape)
	allAttrs = append(allAttrs, attrs...)
	Info("rpc call", allAttrs...)
}

// RPCResponse logs a completed Client Step remote call with latency.
func RPCResponse(target string, durationMS int64, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "target", target, "duration_ms", durationMS)
	allAttrs = append(allAttrs, attrs...)
	Info("rpc response", allAttrs...)
}

// RPCError logs a failed Client Step remote call.
func RPCError(target string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "target", target, "error", err)
	allAttrs = append(allAttrs, attrs...)
	Error("rpc call failed", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	// Patterns match common API key formats.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),     // common bearer-style secret keys
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),   // Google-shaped API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// It replaces matched patterns with a redacted form that preserves the first few characters
// for debugging while hiding the sensitive portion.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}

// APIRequest logs HTTP request details at debug level with automatic
// credential redaction. This function is a no-op when debug logging is
// disabled, for performance.
func APIRequest(target, method, url string, headers map[string]string, body interface{}) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"target", target,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("api request", attrs...)
}

// APIResponse logs HTTP response details at debug level with automatic
// credential redaction. This function is a no-op when debug logging is
// disabled, for performance.
func APIResponse(target string, statusCode int, body string, err error) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 6)
	attrs = append(attrs, "target", target, "status_code", statusCode)

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		Error("api response error", attrs...)
		return
	}

	if body != "" {
		var jsonObj interface{}
		if json.Unmarshal([]byte(body), &jsonObj) == nil {
			prettyJSON, marshalErr := json.MarshalIndent(jsonObj, "", "  ")
			if marshalErr == nil {
				attrs = append(attrs, "body", RedactSensitiveData(string(prettyJSON)))
			} else {
				attrs = append(attrs, "body", RedactSensitiveData(body))
			}
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(body))
		}
	}

	Debug("api response", attrs...)
}
