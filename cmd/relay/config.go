// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "relay"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "relay"
)

// Config holds all configuration for the gateway.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// UnaryTimeoutSeconds bounds non-streaming completions (default: 120)
	UnaryTimeoutSeconds int `mapstructure:"unary_timeout_seconds"`
	// StreamTimeoutSeconds bounds streaming completions (default: 300)
	StreamTimeoutSeconds int `mapstructure:"stream_timeout_seconds"`

	CORS CORSServerConfig `mapstructure:"cors"`
}

// CORSServerConfig holds CORS configuration for HTTP endpoints.
//
// The default configuration uses wildcard origins (["*"]), appropriate for
// development or purely public APIs. For production set allowed_origins to
// specific domains and never combine ["*"] with allow_credentials: true.
type CORSServerConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AWSConfig holds AWS connectivity configuration shared by Bedrock and
// DynamoDB.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// UpstreamTimeoutSeconds bounds each Bedrock invocation (default: 120)
	UpstreamTimeoutSeconds int `mapstructure:"upstream_timeout_seconds"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	MasterAPIKey  string `mapstructure:"master_api_key"`
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Requests      int  `mapstructure:"requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

// FeaturesConfig gates optional request features.
type FeaturesConfig struct {
	Vision           bool `mapstructure:"vision"`
	ToolUse          bool `mapstructure:"tool_use"`
	ExtendedThinking bool `mapstructure:"extended_thinking"`
}

// StoreConfig selects and configures the key store backend.
type StoreConfig struct {
	// Backend is "dynamodb" or "memory" (memory is for development only)
	Backend          string `mapstructure:"backend"`
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	KeysTable        string `mapstructure:"keys_table"`
	UsageTable       string `mapstructure:"usage_table"`
	MappingTable     string `mapstructure:"mapping_table"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration with the precedence
// flags > config file > env > defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config search paths (in order of priority)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/relay/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	// Bind environment variables
	viper.SetEnvPrefix("RELAY")
	viper.AutomaticEnv()
	bindLegacyEnvNames()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets from keyring if not provided via CLI/env.
	// Non-fatal: keyring might not be available.
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// bindLegacyEnvNames recognizes the unprefixed environment names used by
// earlier deployments alongside the RELAY_-prefixed ones.
func bindLegacyEnvNames() {
	_ = viper.BindEnv("aws.region", "RELAY_AWS_REGION", "AWS_REGION")
	_ = viper.BindEnv("auth.require_api_key", "RELAY_AUTH_REQUIRE_API_KEY", "REQUIRE_API_KEY")
	_ = viper.BindEnv("auth.master_api_key", "RELAY_AUTH_MASTER_API_KEY", "MASTER_API_KEY")
	_ = viper.BindEnv("rate_limit.enabled", "RELAY_RATE_LIMIT_ENABLED", "RATE_LIMIT_ENABLED")
	_ = viper.BindEnv("rate_limit.requests", "RELAY_RATE_LIMIT_REQUESTS", "RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("rate_limit.window_seconds", "RELAY_RATE_LIMIT_WINDOW", "RATE_LIMIT_WINDOW")
	_ = viper.BindEnv("features.vision", "RELAY_ENABLE_VISION", "ENABLE_VISION")
	_ = viper.BindEnv("features.tool_use", "RELAY_ENABLE_TOOL_USE", "ENABLE_TOOL_USE")
	_ = viper.BindEnv("features.extended_thinking", "RELAY_ENABLE_EXTENDED_THINKING", "ENABLE_EXTENDED_THINKING")
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.unary_timeout_seconds", 120)
	viper.SetDefault("server.stream_timeout_seconds", 300)

	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.cors.allowed_headers", []string{"*"})
	viper.SetDefault("server.cors.exposed_headers", []string{
		"Content-Length", "Content-Type", "X-Request-Id",
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	})
	viper.SetDefault("server.cors.allow_credentials", false)
	viper.SetDefault("server.cors.max_age", 86400)

	viper.SetDefault("aws.region", "us-west-2")
	viper.SetDefault("aws.upstream_timeout_seconds", 120)

	viper.SetDefault("auth.require_api_key", true)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests", 60)
	viper.SetDefault("rate_limit.window_seconds", 60)

	viper.SetDefault("features.vision", true)
	viper.SetDefault("features.tool_use", true)
	viper.SetDefault("features.extended_thinking", true)

	viper.SetDefault("store.backend", "dynamodb")
	viper.SetDefault("store.keys_table", "relay-api-keys")
	viper.SetDefault("store.usage_table", "relay-usage")
	viper.SetDefault("store.mapping_table", "relay-model-mapping")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required")
	}
	switch c.Store.Backend {
	case "dynamodb", "memory":
	default:
		return fmt.Errorf("store.backend must be dynamodb or memory, got %q", c.Store.Backend)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests < 1 {
			return fmt.Errorf("rate_limit.requests must be at least 1")
		}
		if c.RateLimit.WindowSeconds < 1 {
			return fmt.Errorf("rate_limit.window_seconds must be at least 1")
		}
	}
	if c.Server.CORS.AllowCredentials {
		for _, origin := range c.Server.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("server.cors.allow_credentials cannot be combined with wildcard origins")
			}
		}
	}
	return nil
}

// SecretMapping defines how to load a secret from keyring into the config.
type SecretMapping struct {
	KeyringKey string
	IsSet      func(*Config) bool
	Setter     func(*Config, string)
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "master_api_key",
			IsSet:      func(c *Config) bool { return c.Auth.MasterAPIKey != "" },
			Setter:     func(c *Config, v string) { c.Auth.MasterAPIKey = v },
		},
		{
			KeyringKey: "aws_access_key_id",
			IsSet:      func(c *Config) bool { return c.AWS.AccessKeyID != "" },
			Setter:     func(c *Config, v string) { c.AWS.AccessKeyID = v },
		},
		{
			KeyringKey: "aws_secret_access_key",
			IsSet:      func(c *Config) bool { return c.AWS.SecretAccessKey != "" },
			Setter:     func(c *Config, v string) { c.AWS.SecretAccessKey = v },
		},
	}
}

// GetSecretFromKeyring reads one secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// loadSecretsFromKeyring loads secrets from the system keyring using the
// secret mappings. Values already set via CLI/env/config win.
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: if keyring doesn't have the key, just continue
	}
	return nil
}
