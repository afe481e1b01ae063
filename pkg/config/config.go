// Package config loads the agent's configuration from a YAML file with
// environment variable overrides, applying the defaults enumerated in the
// update agent's configuration reference.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent's full runtime configuration.
type Config struct {
	CatalogBaseURL     string        `yaml:"catalog_base_url"`
	CatalogBearerToken string        `yaml:"catalog_bearer_token"`
	DeviceID           string        `yaml:"device_id"`
	StateDir           string        `yaml:"state_dir"`

	CheckInterval    time.Duration `yaml:"check_interval"`
	ManifestTimeout  time.Duration `yaml:"manifest_timeout"`
	ArtifactTimeout  time.Duration `yaml:"artifact_timeout"`
	MaxArtifactSize  uint64        `yaml:"max_artifact_size"`
	MaxModules       int           `yaml:"max_modules"`
	SignatureRequired bool         `yaml:"signature_required"`
	SigningPublicKeyPEM string     `yaml:"signing_public_key_pem"`
	PostCommitGrace  time.Duration `yaml:"post_commit_grace"`
	FailureDisplayWindow time.Duration `yaml:"failure_display_window"`
	DownloadRetries  int           `yaml:"download_retries"`
	CancelGracePeriod time.Duration `yaml:"cancel_grace_period"`
}

// Defaults returns a Config populated with spec-mandated default values.
// CatalogBaseURL, CatalogBearerToken, and DeviceID have no defaults and
// must be supplied.
func Defaults() Config {
	return Config{
		StateDir:             "/var/lib/otaagent",
		CheckInterval:        30 * time.Second,
		ManifestTimeout:      10 * time.Second,
		ArtifactTimeout:      30 * time.Second,
		MaxArtifactSize:      65536,
		MaxModules:           8,
		SignatureRequired:    false,
		PostCommitGrace:      30 * time.Second,
		FailureDisplayWindow: 8 * time.Second,
		DownloadRetries:      3,
		CancelGracePeriod:    5 * time.Second,
	}
}

// Load reads a YAML config file (if path is non-empty), applies defaults
// for unset fields, then applies OTAAGENT_* environment variable
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		merged := Defaults()
		if err := yaml.Unmarshal(data, &merged); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = merged
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OTAAGENT_CATALOG_BASE_URL"); v != "" {
		cfg.CatalogBaseURL = v
	}
	if v := os.Getenv("OTAAGENT_CATALOG_BEARER_TOKEN"); v != "" {
		cfg.CatalogBearerToken = v
	}
	if v := os.Getenv("OTAAGENT_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("OTAAGENT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("OTAAGENT_SIGNING_PUBLIC_KEY_PEM"); v != "" {
		cfg.SigningPublicKeyPEM = v
	}
	if v := os.Getenv("OTAAGENT_SIGNATURE_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SignatureRequired = b
		}
	}
	if v := os.Getenv("OTAAGENT_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckInterval = d
		}
	}
	if v := os.Getenv("OTAAGENT_MAX_ARTIFACT_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MaxArtifactSize = n
		}
	}
	if v := os.Getenv("OTAAGENT_MAX_MODULES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxModules = n
		}
	}
	if v := os.Getenv("OTAAGENT_DOWNLOAD_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DownloadRetries = n
		}
	}
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if c.CatalogBaseURL == "" {
		return fmt.Errorf("config: catalog_base_url is required")
	}
	if c.CatalogBearerToken == "" {
		return fmt.Errorf("config: catalog_bearer_token is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("config: device_id is required")
	}
	if c.MaxArtifactSize == 0 {
		return fmt.Errorf("config: max_artifact_size must be positive")
	}
	if c.MaxModules <= 0 {
		return fmt.Errorf("config: max_modules must be positive")
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("config: download_retries must be non-negative")
	}
	if c.SignatureRequired && c.SigningPublicKeyPEM == "" {
		return fmt.Errorf("config: signing_public_key_pem is required when signature_required is true")
	}
	return nil
}
