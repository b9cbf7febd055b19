package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the hub configuration
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Storage   StorageConfig   `yaml:"storage"`
	Tarantool TarantoolConfig `yaml:"tarantool"`
	Content   ContentConfig   `yaml:"content"`
	Vault     VaultConfig     `yaml:"vault"`
	Logger    LoggerConfig    `yaml:"logger"`
	Timers    TimersConfig    `yaml:"timers"`
	Audit     AuditConfig     `yaml:"audit"`
}

// HubConfig represents the hub's network identity and bootstrap admin
type HubConfig struct {
	Address        string `yaml:"address" envconfig:"HUB_ADDRESS" default:"127.0.0.1"`
	Port           int    `yaml:"port" envconfig:"HUB_PORT" default:"10010"`
	PortRangeStart int    `yaml:"port_range_start" envconfig:"HUB_PORT_RANGE_START" default:"11000"`
	PortRangeEnd   int    `yaml:"port_range_end" envconfig:"HUB_PORT_RANGE_END" default:"11099"`
	AdminName      string `yaml:"admin_name" envconfig:"HUB_ADMIN_NAME" default:"admin"`
	AdminSecretKey string `yaml:"admin_secret_key" envconfig:"HUB_ADMIN_SECRET_KEY"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND" default:"memory"` // memory or tarantool
}

// TarantoolConfig represents Tarantool connection configuration
type TarantoolConfig struct {
	Address  string        `yaml:"address" envconfig:"TARANTOOL_ADDRESS" default:"localhost:3301"`
	User     string        `yaml:"user" envconfig:"TARANTOOL_USER" default:"cfmq"`
	Password string        `yaml:"password" envconfig:"TARANTOOL_PASSWORD" default:"changeme"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TARANTOOL_TIMEOUT" default:"5s"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"TARANTOOL_VAULT_PATH"`
}

// ContentConfig represents the MinIO blob store used for payload offload
type ContentConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"CONTENT_ENABLED" default:"false"`
	Endpoint        string `yaml:"endpoint" envconfig:"CONTENT_MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"CONTENT_MINIO_ACCESS_KEY_ID" default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"CONTENT_MINIO_SECRET_ACCESS_KEY" default:"minioadmin"`
	UseSSL          bool   `yaml:"use_ssl" envconfig:"CONTENT_MINIO_USE_SSL" default:"false"`
	BucketName      string `yaml:"bucket_name" envconfig:"CONTENT_MINIO_BUCKET_NAME" default:"cfmq-content"`

	// OffloadThreshold is the payload size in bytes at or above which
	// message content moves to the blob store. 0 keeps everything inline.
	OffloadThreshold int `yaml:"offload_threshold" envconfig:"CONTENT_OFFLOAD_THRESHOLD" default:"262144"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"CONTENT_VAULT_PATH"`
}

// VaultConfig represents HashiCorp Vault configuration
type VaultConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"VAULT_ENABLED" default:"false"`
	Address   string `yaml:"address" envconfig:"VAULT_ADDR" default:"http://localhost:8200"`
	Token     string `yaml:"token" envconfig:"VAULT_TOKEN"`
	TokenPath string `yaml:"token_path" envconfig:"VAULT_TOKEN_PATH"`
	Namespace string `yaml:"namespace" envconfig:"VAULT_NAMESPACE"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"` // json or console
	OutputPath string `yaml:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TimersConfig tunes the background and polling intervals
type TimersConfig struct {
	SweepInterval       time.Duration `yaml:"sweep_interval" envconfig:"TIMER_SWEEP_INTERVAL" default:"10s"`
	NotifyFlushInterval time.Duration `yaml:"notify_flush_interval" envconfig:"TIMER_NOTIFY_FLUSH_INTERVAL" default:"1s"`
	LeasePollInterval   time.Duration `yaml:"lease_poll_interval" envconfig:"TIMER_LEASE_POLL_INTERVAL" default:"250ms"`
	IdentityRefresh     time.Duration `yaml:"identity_refresh" envconfig:"TIMER_IDENTITY_REFRESH" default:"5m"`
}

// AuditConfig points the append-only audit sink at its output
type AuditConfig struct {
	OutputPath string `yaml:"output_path" envconfig:"AUDIT_OUTPUT_PATH" default:"stdout"`
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over file configuration
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	fileLoaded := false
	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		fileLoaded = true
	}

	// Store original Vault.Enabled value from file before envconfig processes it
	originalVaultEnabled := cfg.Vault.Enabled
	originalContentEnabled := cfg.Content.Enabled

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// envconfig applies defaults over file values for booleans whose env
	// var is unset; restore the file values in that case.
	if fileLoaded && os.Getenv("VAULT_ENABLED") == "" {
		cfg.Vault.Enabled = originalVaultEnabled
	}
	if fileLoaded && os.Getenv("CONTENT_ENABLED") == "" {
		cfg.Content.Enabled = originalContentEnabled
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true) // Strict parsing

	if err := decoder.Decode(cfg); err != nil {
		return err
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		return fmt.Errorf("invalid hub port: %d", c.Hub.Port)
	}

	if c.Hub.PortRangeStart <= 0 || c.Hub.PortRangeEnd < c.Hub.PortRangeStart || c.Hub.PortRangeEnd > 65535 {
		return fmt.Errorf("invalid queue port range: %d-%d", c.Hub.PortRangeStart, c.Hub.PortRangeEnd)
	}

	switch c.Storage.Backend {
	case "memory":
	case "tarantool":
		if c.Tarantool.Address == "" {
			return fmt.Errorf("tarantool address is required for the tarantool backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if c.Content.Enabled {
		if c.Content.Endpoint == "" {
			return fmt.Errorf("content endpoint is required when content offload is enabled")
		}
		if c.Content.BucketName == "" {
			return fmt.Errorf("content bucket name is required when content offload is enabled")
		}
	}

	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault address is required when vault is enabled")
	}

	return nil
}

// GetVaultToken returns the Vault token from config or file
func (c *VaultConfig) GetVaultToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}

	if c.TokenPath != "" {
		token, err := os.ReadFile(c.TokenPath)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token from file: %w", err)
		}
		return string(token), nil
	}

	return "", fmt.Errorf("vault token not configured")
}
