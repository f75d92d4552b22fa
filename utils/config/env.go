package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kris-hansen/workbench/utils/fileutil"
	"gopkg.in/yaml.v3"
)

// Verbose and Debug are set from the root command's persistent flags.
var (
	Verbose bool
	Debug   bool
)

// Provider holds per-provider credentials and endpoint overrides.
type Provider struct {
	APIKey   string   `yaml:"api_key,omitempty"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Region   string   `yaml:"region,omitempty"`
	Models   []string `yaml:"models,omitempty"`
}

// WorkbenchDefaults are the fallbacks applied to prompt nodes.
type WorkbenchDefaults struct {
	DefaultModel string   `yaml:"default_model,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	MaxTokens    int      `yaml:"max_tokens,omitempty"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
}

// DatabaseConfig configures the Postgres document sink.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn,omitempty"`
	Table string `yaml:"table,omitempty"`
}

// EnvConfig is the persisted workbench configuration.
type EnvConfig struct {
	Providers map[string]*Provider `yaml:"providers,omitempty"`
	Workbench WorkbenchDefaults    `yaml:"workbench,omitempty"`
	Server    *ServerConfig        `yaml:"server,omitempty"`
	Database  DatabaseConfig       `yaml:"database,omitempty"`
}

// DebugLog prints when --debug is set.
func DebugLog(format string, args ...interface{}) {
	if Debug {
		log.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// VerboseLog prints when --verbose or --debug is set.
func VerboseLog(format string, args ...interface{}) {
	if Verbose || Debug {
		log.Printf("[INFO] "+format+"\n", args...)
	}
}

// GetEnvPath returns WORKBENCH_ENV or ~/.workbench/config.yaml.
func GetEnvPath() string {
	if envPath := os.Getenv("WORKBENCH_ENV"); envPath != "" {
		if expanded, err := fileutil.ExpandPath(envPath); err == nil {
			return expanded
		}
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".workbench", "config.yaml")
	}
	return filepath.Join(home, ".workbench", "config.yaml")
}

// LoadEnvConfig reads the configuration at path. A missing file yields an
// empty configuration.
func LoadEnvConfig(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{Providers: map[string]*Provider{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			DebugLog("No configuration at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]*Provider{}
	}
	return cfg, nil
}

// SaveEnvConfig writes cfg to path as YAML.
func SaveEnvConfig(path string, cfg *EnvConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := fileutil.WriteFile(path, data); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// GetProviderConfig returns the stored configuration for a provider. When no
// key is stored, <NAME>_API_KEY from the environment is used.
func (c *EnvConfig) GetProviderConfig(name string) (*Provider, error) {
	name = strings.ToLower(name)
	var p Provider
	if stored, ok := c.Providers[name]; ok && stored != nil {
		p = *stored
	}
	if p.APIKey == "" {
		p.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
	}
	if p.APIKey == "" && p.Endpoint == "" && p.Region == "" {
		return nil, fmt.Errorf("provider %s not configured", name)
	}
	return &p, nil
}

// SetProviderConfig stores or replaces a provider entry.
func (c *EnvConfig) SetProviderConfig(name string, p *Provider) {
	if c.Providers == nil {
		c.Providers = map[string]*Provider{}
	}
	c.Providers[strings.ToLower(name)] = p
}

// ConfiguredProviders lists provider names in sorted order.
func (c *EnvConfig) ConfiguredProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetServerConfig returns the server section, filling defaults.
func (c *EnvConfig) GetServerConfig() *ServerConfig {
	sc := &ServerConfig{}
	if c != nil && c.Server != nil {
		*sc = *c.Server
	}
	if sc.Port == 0 {
		sc.Port = 8088
	}
	if sc.MaxBodyBytes == 0 {
		sc.MaxBodyBytes = 16 << 20
	}
	return sc
}
