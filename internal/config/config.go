// Package config provides configuration management for pdflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabworks/pdflow/internal/util"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// PdflowDir is the pdflow state directory inside a project root.
	PdflowDir = ".pdflow"
)

// DefaultTech is the technology assumed when a request does not name one.
const DefaultTech = "FreePDK45"

// ToolConfig describes how the external CAD tool is invoked.
type ToolConfig struct {
	// Path is the tool binary name or absolute path.
	Path string `yaml:"path"`

	// Args are the fixed arguments placed before the script path.
	Args []string `yaml:"args,omitempty"`

	// SearchPaths are prepended to PATH so site wrapper scripts resolve.
	SearchPaths []string `yaml:"search_paths,omitempty"`

	// Env entries (KEY=VALUE) added to the tool's environment, typically
	// license server settings.
	Env []string `yaml:"env,omitempty"`
}

// TimeoutConfig carries per-stage overrides of the built-in run timeouts.
type TimeoutConfig struct {
	// Stage maps stage names to duration strings ("90m").
	Stage map[string]string `yaml:"stage,omitempty"`
}

// StageTimeout returns the override for a stage, or zero when unset.
func (t TimeoutConfig) StageTimeout(name string) time.Duration {
	raw, ok := t.Stage[name]
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// Config is the pdflow project configuration.
type Config struct {
	// Root is the project root holding designs/, scripts/ and result/.
	Root string `yaml:"root"`

	// Tech is the default technology node.
	Tech string `yaml:"tech"`

	// Tool configures the CAD tool invocation.
	Tool ToolConfig `yaml:"tool"`

	// Timeouts overrides stage run timeouts.
	Timeouts TimeoutConfig `yaml:"timeouts,omitempty"`

	// MaxJobs bounds concurrently running async jobs.
	MaxJobs int `yaml:"max_jobs"`

	// Locking toggles the per-workspace lock files. On by default;
	// single-user scratch trees can turn it off.
	Locking *bool `yaml:"locking,omitempty"`
}

// Default returns the built-in configuration rooted at root.
func Default(root string) *Config {
	return &Config{
		Root: root,
		Tech: DefaultTech,
		Tool: ToolConfig{
			Path: "innovus",
			Args: []string{"-no_gui", "-batch", "-files"},
		},
		MaxJobs: 2,
	}
}

// LockingEnabled reports whether workspace locking is on.
func (c *Config) LockingEnabled() bool {
	return c.Locking == nil || *c.Locking
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Tool.Path == "" {
		return fmt.Errorf("tool.path is required")
	}
	if c.MaxJobs <= 0 {
		return fmt.Errorf("max_jobs must be positive, got %d", c.MaxJobs)
	}
	for name, raw := range c.Timeouts.Stage {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("timeouts.stage.%s: %w", name, err)
		}
	}
	return nil
}

// Path returns the config file location for a project root.
func Path(root string) string {
	return filepath.Join(root, PdflowDir, ConfigFileName)
}

// Load reads the config for a project root, falling back to defaults when
// no file exists. Values absent from the file keep their defaults.
func Load(root string) (*Config, error) {
	cfg := Default(root)

	data, err := os.ReadFile(Path(root))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Root == "" {
		cfg.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config file atomically.
func (c *Config) Save(root string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return util.AtomicWriteFile(Path(root), data, 0o644)
}
