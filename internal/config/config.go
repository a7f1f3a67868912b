// Package config loads the service configuration from YAML with
// environment-variable overrides for deploy-time secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Store selects the tree store backend: "redis" or "memory".
	Store          string `yaml:"store"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	StoreNamespace string `yaml:"storeNamespace"`

	TokenSigningKey string `yaml:"tokenSigningKey"`
	TokenIssuer     string `yaml:"tokenIssuer"`
	TokenTTL        string `yaml:"tokenTTL"`

	AllowSelfChat bool `yaml:"allowSelfChat"`

	// Notifier selects the push transport: "fcm", "amqp", or "none".
	Notifier     string `yaml:"notifier"`
	FCMEndpoint  string `yaml:"fcmEndpoint"`
	FCMServerKey string `yaml:"fcmServerKey"`
	AMQPURL      string `yaml:"amqpURL"`
	AMQPQueue    string `yaml:"amqpQueue"`

	// RateLimit caps write requests per client IP per minute; zero
	// disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TOKEN_SIGNING_KEY"); v != "" {
		cfg.TokenSigningKey = v
	}
	if v := os.Getenv("FCM_SERVER_KEY"); v != "" {
		cfg.FCMServerKey = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseTokenTTL parses the token TTL. Empty means no expiry.
func ParseTokenTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse tokenTTL: %w", err)
	}
	if ttl < 0 {
		return 0, errors.New("config: tokenTTL must not be negative")
	}
	return ttl, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.TokenSigningKey == "" {
		return errors.New("config: tokenSigningKey is required (set in config.yaml or TOKEN_SIGNING_KEY)")
	}
	switch cfg.Store {
	case "", "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis store (set in config.yaml or REDIS_ADDR)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown store %q", cfg.Store)
	}
	switch cfg.Notifier {
	case "", "none":
	case "fcm":
		if cfg.FCMEndpoint == "" || cfg.FCMServerKey == "" {
			return errors.New("config: fcmEndpoint and fcmServerKey are required for the fcm notifier")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required for the amqp notifier")
		}
	default:
		return fmt.Errorf("config: unknown notifier %q", cfg.Notifier)
	}
	if cfg.RateLimit < 0 {
		return errors.New("config: rateLimit must not be negative")
	}
	return nil
}
