package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServiceSettings describes one deployable service.
type ServiceSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	Description string `yaml:"description"`
}

// ServicesConfig is the parsed form of config/services.yaml.
type ServicesConfig struct {
	Services map[string]*ServiceSettings `yaml:"services"`
}

// IsEnabled reports whether id is enabled. Unknown services are disabled.
func (c *ServicesConfig) IsEnabled(id string) bool {
	if settings := c.GetSettings(id); settings != nil {
		return settings.Enabled
	}
	return false
}

// GetSettings returns the settings for id, or nil.
func (c *ServicesConfig) GetSettings(id string) *ServiceSettings {
	if c == nil || c.Services == nil {
		return nil
	}
	return c.Services[id]
}

// LoadServicesConfig loads the services configuration from config/services.yaml
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "services.yaml"))
}

// LoadServicesConfigFromPath loads the services configuration from a specific path
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse services config: %w", err)
	}

	for id, settings := range cfg.Services {
		if settings == nil {
			return nil, fmt.Errorf("service %s: settings are required", id)
		}
		if settings.Port == 0 {
			return nil, fmt.Errorf("service %s: port is required", id)
		}
	}

	return &cfg, nil
}

// LoadServicesConfigOrDefault loads services config from path or returns the
// default if the file is missing or invalid.
func LoadServicesConfigOrDefault(path string) *ServicesConfig {
	if path == "" {
		path = filepath.Join("config", "services.yaml")
	}
	cfg, err := LoadServicesConfigFromPath(path)
	if err != nil {
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig returns the default services configuration
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"gaschecker": {
				Enabled:     true,
				Port:        8080,
				Description: "Gas safety certificate compliance checker",
			},
		},
	}
}
