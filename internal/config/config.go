package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// IdentityConfig names the credential source for one identity kind.
type IdentityConfig struct {
	Profile string `yaml:"profile"`
	RoleArn string `yaml:"role_arn,omitempty"`
}

// RolePatterns holds the role-name pattern sets used by role selection.
// Lookup order: service name, then operation name, then Default.
type RolePatterns struct {
	Services   map[string][]string `yaml:"services"`
	Operations map[string][]string `yaml:"operations"`
	Default    []string            `yaml:"default"`
}

// PatternsFor returns the pattern set for the given service/operation pair.
func (rp RolePatterns) PatternsFor(service, operation string) []string {
	if p, ok := rp.Services[service]; ok && len(p) > 0 {
		return p
	}
	if p, ok := rp.Operations[operation]; ok && len(p) > 0 {
		return p
	}
	return rp.Default
}

// Config holds all no-wing configuration.
type Config struct {
	Region     string                    `yaml:"region"`
	Identities map[string]IdentityConfig `yaml:"identities"`
	Patterns   RolePatterns              `yaml:"role_patterns"`
	Strategies map[string][]string       `yaml:"strategies"`
	Requests   RequestConfig             `yaml:"requests"`
	AuditPath  string                    `yaml:"audit_path,omitempty"`
	StorePath  string                    `yaml:"store_path,omitempty"`
}

// RequestConfig controls permission-request lifecycle.
type RequestConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// StrategiesFor returns the degraded-strategy chain for a service,
// falling back to the default chain.
func (c *Config) StrategiesFor(service string) []string {
	if s, ok := c.Strategies[service]; ok && len(s) > 0 {
		return s
	}
	return c.Strategies["default"]
}

var validStrategies = map[string]bool{
	"read-only-validation": true,
	"dry-run":              true,
	"staged-deployment":    true,
	"manual-approval":      true,
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Region: "us-east-1",
		Identities: map[string]IdentityConfig{
			"human": {Profile: "default"},
			"agent": {Profile: "no-wing-agent"},
		},
		Patterns: RolePatterns{
			Services: map[string][]string{
				"deployment": {"no-wing-deploy-*", "no-wing-cloudformation-*", "*-deployment-role"},
			},
			Operations: map[string][]string{
				"read": {"no-wing-readonly-*", "*-read-role"},
			},
			Default: []string{"no-wing-*", "*-agent-role"},
		},
		Strategies: map[string][]string{
			"deployment": {"read-only-validation", "dry-run", "staged-deployment", "manual-approval"},
			"default":    {"read-only-validation", "dry-run", "manual-approval"},
		},
		Requests: RequestConfig{TTL: 24 * time.Hour},
	}
}

// Load reads configuration from a YAML file.
// Empty path falls back to ~/.no-wing/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".no-wing", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for svc, chain := range c.Strategies {
		for _, name := range chain {
			if !validStrategies[name] {
				return fmt.Errorf("config: unknown strategy %q for service %q", name, svc)
			}
		}
	}
	if c.Requests.TTL <= 0 {
		c.Requests.TTL = 24 * time.Hour
	}
	return nil
}

// Dir returns the no-wing dotfile directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".no-wing")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
