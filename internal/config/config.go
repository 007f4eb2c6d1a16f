// Package config loads swarmix settings from TOML files and the
// environment. Precedence, lowest to highest: built-in defaults, the user
// file ~/.swarmix/config.toml, the repository file .swarmix.toml, then
// SWARMIX_* environment variables. Command-line flags are applied by the
// CLI on top of the loaded config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Built-in worker invocation defaults.
const (
	DefaultModel   = "gpt-5-codex-high"
	DefaultSandbox = "danger-full-access"
)

// WorkerConfig selects the worker CLI and its invocation parameters.
type WorkerConfig struct {
	Bin     string `toml:"bin"`     // binary path or name (empty = auto-resolve)
	Model   string `toml:"model"`   // model passed via --model
	Sandbox string `toml:"sandbox"` // sandbox mode passed via --sandbox
}

// RunConfig bounds a fan-out round.
type RunConfig struct {
	MaxParallel int `toml:"max_parallel"` // concurrent agent cap (0 = unlimited)
}

// CommitConfig sets the author identity for per-agent round commits.
type CommitConfig struct {
	AuthorName  string `toml:"author_name"`
	AuthorEmail string `toml:"author_email"`
}

// WebConfig holds defaults for the web observer.
type WebConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	TLSMode   string  `toml:"tls_mode"` // "", "self-signed", "custom"
	CertFile  string  `toml:"cert_file"`
	KeyFile   string  `toml:"key_file"`
	AuthToken string  `toml:"auth_token"`
	RateLimit float64 `toml:"rate_limit"` // requests/sec per client IP (0 = unlimited)
	MDNS      bool    `toml:"mdns"`
}

// PushoverConfig holds Pushover notification credentials.
type PushoverConfig struct {
	UserKey  string `toml:"user_key"`
	AppToken string `toml:"app_token"`
}

// Config is the merged swarmix configuration.
type Config struct {
	Worker   WorkerConfig   `toml:"worker"`
	Run      RunConfig      `toml:"run"`
	Commit   CommitConfig   `toml:"commit"`
	Web      WebConfig      `toml:"web"`
	Pushover PushoverConfig `toml:"pushover"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Model:   DefaultModel,
			Sandbox: DefaultSandbox,
		},
		Commit: CommitConfig{
			AuthorName:  "Swarmix",
			AuthorEmail: "swarmix@localhost",
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
			MDNS: true,
		},
	}
}

// Dir returns the user-level swarmix directory (~/.swarmix), creating it
// if needed.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".swarmix")
	os.MkdirAll(dir, 0755)
	return dir
}

// UserPath returns the path of the user-level config file.
func UserPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// RepoPath returns the path of the repository-level config file.
func RepoPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".swarmix.toml")
}

// Load merges all configuration layers for a repository. A missing file is
// not an error; a malformed one is.
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	paths := []string{UserPath()}
	if repoRoot != "" {
		paths = append(paths, RepoPath(repoRoot))
	}
	for _, path := range paths {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// mergeFile decodes path over cfg. Keys absent from the file keep their
// current values, which is what makes the layering work.
func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SWARMIX_WORKER_BIN")); v != "" {
		cfg.Worker.Bin = v
	}
	if v := strings.TrimSpace(os.Getenv("SWARMIX_MODEL")); v != "" {
		cfg.Worker.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("SWARMIX_SANDBOX")); v != "" {
		cfg.Worker.Sandbox = v
	}
	if v := strings.TrimSpace(os.Getenv("SWARMIX_MAX_PARALLEL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Run.MaxParallel = n
		}
	}
}
