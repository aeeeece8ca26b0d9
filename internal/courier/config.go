package courier

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete node configuration
type Config struct {
	Broker    BrokerConfig  `yaml:"broker"`
	Node      NodeConfig    `yaml:"node"`
	Logging   LoggingConfig `yaml:"logging"`
	Telemetry Telemetry     `yaml:"telemetry"`
}

// BrokerConfig contains broker connection settings
type BrokerConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NodeConfig contains node identity and liveness settings
type NodeConfig struct {
	Prefix    string `yaml:"prefix"`
	Role      string `yaml:"role"`
	Heartbeat string `yaml:"heartbeat"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Telemetry contains metrics exposure settings
type Telemetry struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// NewDefaultConfig creates a default configuration
func NewDefaultConfig() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

func (c *Config) setDefaults() {
	if c.Broker.Addr == "" {
		c.Broker.Addr = "localhost:6379"
	}
	if c.Node.Prefix == "" {
		c.Node.Prefix = DefaultPrefix
	}
	if c.Node.Role == "" {
		c.Node.Role = DefaultRole
	}
	if c.Node.Heartbeat == "" {
		c.Node.Heartbeat = DefaultHeartbeat.String()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.Addr == "" {
		c.Telemetry.Addr = ":9115"
	}
}

func (c *Config) validate() error {
	if _, err := c.HeartbeatInterval(); err != nil {
		return err
	}
	if c.Broker.DB < 0 {
		return fmt.Errorf("broker db must not be negative")
	}
	return nil
}

// HeartbeatInterval parses the configured heartbeat duration.
func (c *Config) HeartbeatInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Node.Heartbeat)
	if err != nil {
		return 0, fmt.Errorf("invalid heartbeat interval %q: %w", c.Node.Heartbeat, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("heartbeat interval must be positive, got %s", c.Node.Heartbeat)
	}
	return interval, nil
}

// Options converts the configuration into node/client construction options.
func (c *Config) Options() ([]Option, error) {
	interval, err := c.HeartbeatInterval()
	if err != nil {
		return nil, err
	}
	return []Option{
		WithPrefix(c.Node.Prefix),
		WithRole(c.Node.Role),
		WithHeartbeat(interval),
	}, nil
}
