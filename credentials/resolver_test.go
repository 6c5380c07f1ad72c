package credentials

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_ExplicitAPIKey(t *testing.T) {
	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{APIKey: "explicit-key"},
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	apiKeyCred, ok := cred.(*APIKeyCredential)
	if !ok {
		t.Fatalf("expected *APIKeyCredential, got %T", cred)
	}
	if apiKeyCred.APIKey() != "explicit-key" {
		t.Errorf("APIKey() = %q, want %q", apiKeyCred.APIKey(), "explicit-key")
	}
}

func TestResolve_CredentialFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(file, []byte("file-key\n"), 0o600); err != nil {
		t.Fatalf("failed to write credential file: %v", err)
	}

	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{CredentialFile: "key.txt"},
		ConfigDir:        dir,
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	apiKeyCred := cred.(*APIKeyCredential)
	if apiKeyCred.APIKey() != "file-key" {
		t.Errorf("APIKey() = %q, want %q", apiKeyCred.APIKey(), "file-key")
	}
}

func TestResolve_CredentialFile_RelativePath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	file := filepath.Join(sub, "key.txt")
	if err := os.WriteFile(file, []byte("nested-key"), 0o600); err != nil {
		t.Fatalf("failed to write credential file: %v", err)
	}

	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{CredentialFile: "nested/key.txt"},
		ConfigDir:        dir,
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.(*APIKeyCredential).APIKey() != "nested-key" {
		t.Errorf("APIKey() = %q, want %q", cred.(*APIKeyCredential).APIKey(), "nested-key")
	}
}

func TestResolve_CredentialFile_NotFound(t *testing.T) {
	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{CredentialFile: "missing.txt"},
		ConfigDir:        t.TempDir(),
	}

	_, err := Resolve(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing credential file")
	}
}

func TestResolve_CredentialEnv(t *testing.T) {
	t.Setenv("INVENTORY_TOKEN", "env-key")

	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{CredentialEnv: "INVENTORY_TOKEN"},
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.(*APIKeyCredential).APIKey() != "env-key" {
		t.Errorf("APIKey() = %q, want %q", cred.(*APIKeyCredential).APIKey(), "env-key")
	}
}

func TestResolve_CredentialEnv_NotSet(t *testing.T) {
	os.Unsetenv("UNSET_CREDENTIAL_ENV_VAR")

	cfg := ResolverConfig{
		TargetName:       "inventory-svc",
		CredentialConfig: &CredentialConfig{CredentialEnv: "UNSET_CREDENTIAL_ENV_VAR"},
	}

	_, err := Resolve(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when credential env var is not set")
	}
}

func TestResolve_DefaultEnvVars(t *testing.T) {
	t.Setenv("INVENTORY_SVC_API_KEY", "default-key")

	cfg := ResolverConfig{TargetName: "inventory-svc"}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.(*APIKeyCredential).APIKey() != "default-key" {
		t.Errorf("APIKey() = %q, want %q", cred.(*APIKeyCredential).APIKey(), "default-key")
	}
}

func TestResolve_DefaultEnvVars_NormalizesTargetName(t *testing.T) {
	t.Setenv("PAYMENTS_GATEWAY_API_KEY", "gateway-key")

	cfg := ResolverConfig{TargetName: "payments.gateway"}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.(*APIKeyCredential).APIKey() != "gateway-key" {
		t.Errorf("APIKey() = %q, want %q", cred.(*APIKeyCredential).APIKey(), "gateway-key")
	}
}

func TestResolve_NoCredential(t *testing.T) {
	cfg := ResolverConfig{TargetName: "unconfigured-target-xyz"}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.Type() != "none" {
		t.Errorf("Type() = %q, want %q", cred.Type(), "none")
	}
}

func TestResolve_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(file, []byte("file-key"), 0o600); err != nil {
		t.Fatalf("failed to write credential file: %v", err)
	}
	t.Setenv("ORDER_TEST_ENV", "env-key")
	t.Setenv("ORDER_TEST_API_KEY", "default-key")

	cfg := ResolverConfig{
		TargetName: "order-test",
		CredentialConfig: &CredentialConfig{
			APIKey:         "explicit-key",
			CredentialFile: "key.txt",
			CredentialEnv:  "ORDER_TEST_ENV",
		},
		ConfigDir: dir,
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cred.(*APIKeyCredential).APIKey() != "explicit-key" {
		t.Errorf("explicit api_key should win priority, got %q", cred.(*APIKeyCredential).APIKey())
	}
}

func TestResolve_UnknownPlatformType(t *testing.T) {
	cfg := ResolverConfig{
		TargetName:     "weird-target",
		PlatformConfig: &PlatformConfig{Type: "not-a-real-platform"},
	}

	_, err := Resolve(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unsupported platform type")
	}
}

func TestResolve_HeaderOverride(t *testing.T) {
	cfg := ResolverConfig{
		TargetName:       "legacy-svc",
		CredentialConfig: &CredentialConfig{APIKey: "legacy-key"},
		HeaderOverride:   &HeaderConfig{HeaderName: "X-API-Key"},
	}

	cred, err := Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.invalid", nil)
	if err := cred.Apply(context.Background(), req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := req.Header.Get("X-API-Key"); got != "legacy-key" {
		t.Errorf("X-API-Key header = %q, want %q", got, "legacy-key")
	}
}

func TestAPIKeyCredential_Apply(t *testing.T) {
	cred := NewAPIKeyCredential("secret")

	req, _ := http.NewRequest(http.MethodGet, "https://example.invalid", nil)
	if err := cred.Apply(context.Background(), req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got := req.Header.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer secret")
	}
}

func TestAPIKeyCredential_CustomHeader(t *testing.T) {
	cred := NewAPIKeyCredential("secret", WithHeaderName("X-API-Key"), WithPrefix(""))

	req, _ := http.NewRequest(http.MethodGet, "https://example.invalid", nil)
	if err := cred.Apply(context.Background(), req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got := req.Header.Get("X-API-Key"); got != "secret" {
		t.Errorf("X-API-Key header = %q, want %q", got, "secret")
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization header should be empty, got %q", got)
	}
}

func TestNoOpCredential_Apply(t *testing.T) {
	cred := &NoOpCredential{}

	req, _ := http.NewRequest(http.MethodGet, "https://example.invalid", nil)
	if err := cred.Apply(context.Background(), req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cred.Type() != "none" {
		t.Errorf("Type() = %q, want %q", cred.Type(), "none")
	}
}
