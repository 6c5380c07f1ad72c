package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Platform type constants.
const (
	platformBedrock = "bedrock"
	platformVertex  = "vertex"
	platformAzure   = "azure"
)

// CredentialConfig is the explicit, per-target credential configuration a
// Client Step may declare for its remote endpoint.
type CredentialConfig struct {
	// APIKey is an explicit credential value, highest priority.
	APIKey string
	// CredentialFile names a file (relative to ConfigDir, or absolute)
	// whose trimmed contents are the credential value.
	CredentialFile string
	// CredentialEnv names an environment variable carrying the credential value.
	CredentialEnv string
}

// PlatformConfig selects a cloud-native credential chain for a Client Step's
// remote target instead of a bearer/API-key scheme.
type PlatformConfig struct {
	// Type is one of "bedrock", "vertex", "azure".
	Type string
	// Region is the AWS/Azure region, when applicable.
	Region string
	// Project is the GCP project ID, when applicable.
	Project string
	// Endpoint is the Azure resource endpoint, when applicable.
	Endpoint string
}

// HeaderConfig describes how a resolved API key credential is attached to
// the outgoing request for a given remote target.
type HeaderConfig struct {
	HeaderName string
	Prefix     string
}

// ResolverConfig holds configuration for resolving a Client Step's remote
// credential.
type ResolverConfig struct {
	// TargetName identifies the remote step/service the credential is for
	// (the step's serviceName). Used to derive a default environment
	// variable name when no explicit CredentialConfig is supplied.
	TargetName string

	// CredentialConfig is the explicit credential configuration declared by
	// the Client Step.
	CredentialConfig *CredentialConfig

	// PlatformConfig selects a cloud-native credential chain (bedrock,
	// vertex, azure) instead of a bearer/API-key scheme.
	PlatformConfig *PlatformConfig

	// HeaderOverride, if set, overrides the default Authorization/Bearer
	// header scheme used for a resolved API key credential.
	HeaderOverride *HeaderConfig

	// ConfigDir is the base directory for resolving relative credential
	// file paths.
	ConfigDir string
}

// Resolve resolves credentials according to the chain:
//  1. api_key (explicit value)
//  2. credential_file (read from file)
//  3. credential_env (read from environment variable)
//  4. default env var derived from TargetName ("<TARGET_NAME>_API_KEY")
//
// For platform configurations (bedrock, vertex, azure), it returns the
// appropriate cloud credential type that uses the respective SDK's default
// credential chain.
func Resolve(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	if cfg.PlatformConfig != nil && cfg.PlatformConfig.Type != "" {
		return resolvePlatformCredential(ctx, cfg)
	}

	return resolveAPIKeyCredential(cfg)
}

// resolveAPIKeyCredential resolves API key credentials from various sources.
func resolveAPIKeyCredential(cfg ResolverConfig) (Credential, error) {
	apiKey, err := findAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	// If no API key found, return a NoOp credential (some remote targets may
	// authenticate out-of-band, e.g. mTLS at the transport layer).
	if apiKey == "" {
		return &NoOpCredential{}, nil
	}

	return createAPIKeyCredential(apiKey, cfg.HeaderOverride), nil
}

// findAPIKey searches for an API key in the resolution chain.
func findAPIKey(cfg ResolverConfig) (string, error) {
	if cfg.CredentialConfig != nil && cfg.CredentialConfig.APIKey != "" {
		return cfg.CredentialConfig.APIKey, nil
	}

	if cfg.CredentialConfig != nil && cfg.CredentialConfig.CredentialFile != "" {
		key, err := readCredentialFile(cfg.CredentialConfig.CredentialFile, cfg.ConfigDir)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return key, nil
	}

	if cfg.CredentialConfig != nil && cfg.CredentialConfig.CredentialEnv != "" {
		key := os.Getenv(cfg.CredentialConfig.CredentialEnv)
		if key == "" {
			return "", fmt.Errorf("environment variable %s is not set", cfg.CredentialConfig.CredentialEnv)
		}
		return key, nil
	}

	return os.Getenv(defaultEnvVar(cfg.TargetName)), nil
}

// defaultEnvVar derives "<TARGET_NAME>_API_KEY" from a step's service name,
// e.g. "inventory-svc" -> "INVENTORY_SVC_API_KEY".
func defaultEnvVar(targetName string) string {
	if targetName == "" {
		return ""
	}
	normalized := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(targetName))
	return normalized + "_API_KEY"
}

// createAPIKeyCredential creates an API key credential, defaulting to Bearer
// auth in the Authorization header unless the Client Step overrides it.
func createAPIKeyCredential(apiKey string, header *HeaderConfig) *APIKeyCredential {
	if header == nil {
		header = &HeaderConfig{HeaderName: "Authorization", Prefix: "Bearer "}
	}

	opts := []APIKeyOption{WithHeaderName(header.HeaderName)}
	opts = append(opts, WithPrefix(header.Prefix))

	return NewAPIKeyCredential(apiKey, opts...)
}

// readCredentialFile reads an API key from a file.
func readCredentialFile(path, configDir string) (string, error) {
	if !strings.HasPrefix(path, "/") && configDir != "" {
		path = configDir + "/" + path
	}

	//nolint:gosec // G304: File path is from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// MustResolve resolves credentials and panics on error.
// Use this only in initialization code where errors are unrecoverable.
func MustResolve(ctx context.Context, cfg ResolverConfig) Credential {
	cred, err := Resolve(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve credentials: %v", err))
	}
	return cred
}
