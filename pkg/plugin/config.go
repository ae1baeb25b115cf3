package plugin

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManagerConfig is the YAML manifest describing which tool plugins to load
// and which capabilities they may use.
type ManagerConfig struct {
	// PluginDir is prepended to relative plugin paths.
	PluginDir string `yaml:"plugin_dir"`
	// Defaults applies to every plugin that does not declare its own policy.
	Defaults IsolationPolicy         `yaml:"defaults"`
	Plugins  map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig is the manifest block for a single plugin.
type PluginConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Symbol names the exported identifier to resolve; empty means
	// DefaultSymbol.
	Symbol string `yaml:"symbol"`
	// Tools restricts which tool names the plugin may contribute to the
	// registry. Empty means all of them.
	Tools  []string         `yaml:"tools"`
	Config map[string]any   `yaml:"config"`
	Policy *IsolationPolicy `yaml:"policy"`
}

// IsolationPolicy governs the capabilities a plugin is allowed to request.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowed_capabilities"`
	DeniedCapabilities  []Capability `yaml:"denied_capabilities"`
}

// Merge fills unset fields of the policy from other.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// LoadManagerConfig reads a YAML manifest into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin manifest: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin manifest: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate ensures the manifest is internally consistent.
func (c ManagerConfig) Validate() error {
	for id, plugin := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
		if !plugin.Enabled {
			continue
		}
		if plugin.Path == "" {
			return fmt.Errorf("plugin %s: path cannot be empty when enabled", id)
		}
		for _, name := range plugin.Tools {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("plugin %s: tool allowlist contains an empty name", id)
			}
		}
	}
	return nil
}
