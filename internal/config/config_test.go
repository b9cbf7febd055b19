package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestConfig_Validate_Success(t *testing.T) {
	cfg := &Config{
		Hub: HubConfig{
			Port:           10010,
			PortRangeStart: 11000,
			PortRangeEnd:   11099,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{name: "zero port", port: 0},
		{name: "negative port", port: -1},
		{name: "port too large", port: 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Hub: HubConfig{
					Port:           tt.port,
					PortRangeStart: 11000,
					PortRangeEnd:   11099,
				},
				Storage: StorageConfig{Backend: "memory"},
			}
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_InvalidPortRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
	}{
		{name: "zero start", start: 0, end: 11099},
		{name: "end before start", start: 11099, end: 11000},
		{name: "end too large", start: 11000, end: 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Hub: HubConfig{
					Port:           10010,
					PortRangeStart: tt.start,
					PortRangeEnd:   tt.end,
				},
				Storage: StorageConfig{Backend: "memory"},
			}
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error for invalid port range")
			}
		})
	}
}

func TestConfig_Validate_StorageBackend(t *testing.T) {
	cfg := &Config{
		Hub:     HubConfig{Port: 10010, PortRangeStart: 11000, PortRangeEnd: 11099},
		Storage: StorageConfig{Backend: "postgres"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}

	cfg.Storage.Backend = "tarantool"
	cfg.Tarantool.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for tarantool backend without address")
	}

	cfg.Tarantool.Address = "localhost:3301"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestConfig_Validate_ContentEnabled(t *testing.T) {
	cfg := &Config{
		Hub:     HubConfig{Port: 10010, PortRangeStart: 11000, PortRangeEnd: 11099},
		Storage: StorageConfig{Backend: "memory"},
		Content: ContentConfig{Enabled: true, Endpoint: "", BucketName: "bucket"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for content offload without endpoint")
	}

	cfg.Content.Endpoint = "localhost:9000"
	cfg.Content.BucketName = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for content offload without bucket")
	}
}

func TestConfig_Validate_VaultEnabledWithoutAddress(t *testing.T) {
	cfg := &Config{
		Hub:     HubConfig{Port: 10010, PortRangeStart: 11000, PortRangeEnd: 11099},
		Storage: StorageConfig{Backend: "memory"},
		Vault:   VaultConfig{Enabled: true, Address: ""},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for vault enabled without address")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Hub.Port != 10010 {
		t.Errorf("expected default hub port 10010, got %d", cfg.Hub.Port)
	}
	if cfg.Hub.PortRangeStart != 11000 || cfg.Hub.PortRangeEnd != 11099 {
		t.Errorf("unexpected default port range %d-%d", cfg.Hub.PortRangeStart, cfg.Hub.PortRangeEnd)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend by default, got %s", cfg.Storage.Backend)
	}
	if cfg.Vault.Enabled || cfg.Content.Enabled {
		t.Error("expected vault and content offload disabled by default")
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
hub:
  admin_secret_key: file-admin-key

vault:
  enabled: true
  address: http://localhost:8200
  token: file-token
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Hub.AdminSecretKey != "file-admin-key" {
		t.Errorf("expected admin secret from file, got %q", cfg.Hub.AdminSecretKey)
	}
	if !cfg.Vault.Enabled {
		t.Error("expected vault enabled from file to survive env processing")
	}
	if cfg.Vault.Token != "file-token" {
		t.Errorf("expected vault token from file, got %q", cfg.Vault.Token)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
hub:
  admin_secret_key: file-admin-key
`)
	t.Setenv("HUB_PORT", "12345")
	t.Setenv("HUB_ADMIN_SECRET_KEY", "env-admin-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hub.Port != 12345 {
		t.Errorf("expected env port 12345, got %d", cfg.Hub.Port)
	}
	if cfg.Hub.AdminSecretKey != "env-admin-key" {
		t.Errorf("expected env admin secret, got %q", cfg.Hub.AdminSecretKey)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfigFile(t, `
hub:
  bogus_setting: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected strict parsing to reject an unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestVaultConfig_GetVaultToken(t *testing.T) {
	c := &VaultConfig{Token: "direct-token"}
	token, err := c.GetVaultToken()
	if err != nil || token != "direct-token" {
		t.Fatalf("expected direct token, got %q (%v)", token, err)
	}

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("file-token"), 0600); err != nil {
		t.Fatalf("failed to write token file: %v", err)
	}
	c = &VaultConfig{TokenPath: path}
	token, err = c.GetVaultToken()
	if err != nil || token != "file-token" {
		t.Fatalf("expected token from file, got %q (%v)", token, err)
	}

	c = &VaultConfig{}
	if _, err := c.GetVaultToken(); err == nil {
		t.Fatal("expected an error when no token is configured")
	}
}
