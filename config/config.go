package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MQTT    MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	Logging LogConfig     `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Bridge  BridgeConfig  `json:"bridge" yaml:"bridge"`
}

type MQTTConfig struct {
	ClientID string `json:"clientId" yaml:"clientId"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	// Duration strings, e.g. "30s"
	Keepalive           string      `json:"keepalive" yaml:"keepalive"`
	SubscriptionTimeout string      `json:"subscriptionTimeout" yaml:"subscriptionTimeout"`
	Will                *WillConfig `json:"will,omitempty" yaml:"will,omitempty"`
}

// WillConfig describes the last-will message registered with the broker.
type WillConfig struct {
	Topic   string `json:"topic" yaml:"topic"`
	Payload string `json:"payload" yaml:"payload"`
	QoS     byte   `json:"qos" yaml:"qos"`
	Retain  bool   `json:"retain" yaml:"retain"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path or "stdout"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
	MaxSize    int    `json:"maxSize" yaml:"maxSize"`       // megabytes, file output only
	MaxAge     int    `json:"maxAge" yaml:"maxAge"`         // days
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

// BridgeConfig configures the optional MQTT→NATS bridge.
type BridgeConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	URL     string   `json:"url" yaml:"url"`
	Topics  []string `json:"topics" yaml:"topics"`
}

// Load reads and parses the configuration file. The format is chosen by
// extension: .yaml/.yml files are YAML, anything else is JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	// MQTT defaults
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mqtt-transport-" + uuid.NewString()[:8]
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.Keepalive == "" {
		c.MQTT.Keepalive = "30s"
	}
	if c.MQTT.SubscriptionTimeout == "" {
		c.MQTT.SubscriptionTimeout = "60s"
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	// Metrics defaults
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}

	// Bridge defaults
	if c.Bridge.URL == "" {
		c.Bridge.URL = "nats://127.0.0.1:4222"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	// Validate MQTT config
	if cfg.MQTT.Host == "" {
		return fmt.Errorf("mqtt broker host is required")
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt port: %d", cfg.MQTT.Port)
	}
	if _, err := time.ParseDuration(cfg.MQTT.Keepalive); err != nil {
		return fmt.Errorf("invalid keepalive: %w", err)
	}
	if _, err := time.ParseDuration(cfg.MQTT.SubscriptionTimeout); err != nil {
		return fmt.Errorf("invalid subscription timeout: %w", err)
	}

	if will := cfg.MQTT.Will; will != nil {
		if will.Topic == "" {
			return fmt.Errorf("will topic is required when will is configured")
		}
		if will.QoS > 2 {
			return fmt.Errorf("invalid will qos: %d", will.QoS)
		}
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	// Validate bridge config
	if cfg.Bridge.Enabled && len(cfg.Bridge.Topics) == 0 {
		return fmt.Errorf("bridge requires at least one topic filter")
	}

	return nil
}

// KeepaliveDuration returns the parsed keepalive interval.
func (c *MQTTConfig) KeepaliveDuration() time.Duration {
	d, _ := time.ParseDuration(c.Keepalive)
	return d
}

// SubscriptionTimeoutDuration returns the parsed subscription timeout.
func (c *MQTTConfig) SubscriptionTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.SubscriptionTimeout)
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(clientID, host string, port int, metricsAddr, metricsPath string) {
	if clientID != "" {
		c.MQTT.ClientID = clientID
	}
	if host != "" {
		c.MQTT.Host = host
	}
	if port > 0 {
		c.MQTT.Port = port
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
}
