// Package config loads and saves the pipeline configuration from a YAML
// file under the user's home directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultRollbackWindowHours keeps deployed promotions rollback-eligible
// for one week.
const DefaultRollbackWindowHours = 168

// Advisory configures the advisory model client.
type Advisory struct {
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// Kafka configures the notification producer. Empty brokers disable it.
type Kafka struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// Config is the full pipeline configuration.
type Config struct {
	// OwnRepoPath is the agent's own production repository, the one that
	// can never be written directly.
	OwnRepoPath string `yaml:"ownRepoPath"`

	// ProtectedPatterns are glob patterns of paths that may never be
	// written regardless of repository.
	ProtectedPatterns []string `yaml:"protectedPatterns,omitempty"`

	// TargetRepoID and TargetRepoPath identify the repository promotions
	// deploy to.
	TargetRepoID   string `yaml:"targetRepoId,omitempty"`
	TargetRepoPath string `yaml:"targetRepoPath,omitempty"`

	// BaseBranch is the branch promotion pull requests target.
	BaseBranch string `yaml:"baseBranch"`

	// TestCommand runs on the target repository during deployment.
	TestCommand string `yaml:"testCommand,omitempty"`

	// DeployCommand optionally runs after tests pass.
	DeployCommand string `yaml:"deployCommand,omitempty"`

	// AutoDeploy makes an approval deploy in the same call.
	AutoDeploy bool `yaml:"autoDeploy"`

	// RequireRollbackApproval gates rollback execution behind an explicit
	// approval.
	RequireRollbackApproval bool `yaml:"requireRollbackApproval"`

	// RollbackWindowHours is how long after deployment a rollback may
	// still execute.
	RollbackWindowHours int `yaml:"rollbackWindowHours"`

	// PostgresDSN enables Postgres-backed record persistence when set;
	// empty keeps records in memory.
	PostgresDSN string `yaml:"postgresDsn,omitempty"`

	Advisory Advisory `yaml:"advisory,omitempty"`
	Kafka    Kafka    `yaml:"kafka,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BaseBranch:              "main",
		RequireRollbackApproval: true,
		RollbackWindowHours:     DefaultRollbackWindowHours,
	}
}

// DefaultPath returns ~/.warden/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "config.yaml"), nil
}

// Load reads the configuration from path, or from DefaultPath when path is
// empty. A missing file is not an error; it yields the defaults. Zero-value
// fields in the file are filled with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config from %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.RollbackWindowHours <= 0 {
		cfg.RollbackWindowHours = DefaultRollbackWindowHours
	}
}

// Save writes the configuration to path, or to DefaultPath when path is
// empty, creating the parent directory as needed.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}
	return nil
}
