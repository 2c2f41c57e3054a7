package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/parley/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied after the config files are merged.
const (
	DefaultDataDir        = ".parley"
	DefaultMaxTurns       = 5
	DefaultHistoryLimit   = 40
	DefaultTriggerTokens  = 100000
	DefaultTargetTokens   = 4000
	DefaultPreserveRecent = 10
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Compaction are the history-compaction knobs: when to compact, how small
// the summary should aim to be, and how many recent messages stay verbatim.
type Compaction struct {
	TriggerTokens  int `yaml:"trigger_tokens"`
	TargetTokens   int `yaml:"target_tokens"`
	PreserveRecent int `yaml:"preserve_recent"`
}

type Config struct {
	Provider             string           `yaml:"provider"`
	Model                string           `yaml:"model"`
	SummarizerModel      string           `yaml:"summarizer_model"`
	MaxTurns             int              `yaml:"max_turns"`
	HistoryLimit         int              `yaml:"history_limit"`
	WorkingMemory        bool             `yaml:"working_memory"`
	DataDir              string           `yaml:"data_dir"`
	Compaction           Compaction       `yaml:"compaction"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// The agent's own data directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, DefaultDataDir, DefaultDataDir+"/**")

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, DefaultDataDir, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, DefaultDataDir, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields after the merge.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Compaction.TriggerTokens <= 0 {
		c.Compaction.TriggerTokens = DefaultTriggerTokens
	}
	if c.Compaction.TargetTokens <= 0 {
		c.Compaction.TargetTokens = DefaultTargetTokens
	}
	if c.Compaction.PreserveRecent <= 0 {
		c.Compaction.PreserveRecent = DefaultPreserveRecent
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Note: Unmarshal will overwrite fields present in the YAML. This provides
	// a simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
