package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/klara-research/klarity/internal/core/domain"
)

const (
	DefaultTopK                = 100
	DefaultSimilarityThreshold = 0.8
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Estimator: EstimatorConfig{
			TopK:         DefaultTopK,
			MinTokenProb: 0.01,
		},
		Remote: RemoteConfig{
			BaseURL:           "https://api.together.xyz",
			APIKeyEnv:         "TOGETHER_API_KEY",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Insight: InsightConfig{
			Enabled:     false,
			MaxTokens:   512,
			Temperature: 0.2,
			Timeout:     30 * time.Second,
		},
		Clustering: ClusteringConfig{
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			Directory:  "./logs",
			FileOutput: false,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("KLARITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have KLARITY_CONFIG_FILE env var
		if configFile := os.Getenv("KLARITY_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the estimator would misbehave on.
func (c *Config) Validate() error {
	if c.Estimator.TopK <= 0 {
		return &domain.ConfigValidationError{
			Field: "estimator.top_k", Value: c.Estimator.TopK, Reason: "must be positive",
		}
	}
	if c.Estimator.MinTokenProb < 0 || c.Estimator.MinTokenProb > 1 {
		return &domain.ConfigValidationError{
			Field: "estimator.min_token_prob", Value: c.Estimator.MinTokenProb, Reason: "must be in [0,1]",
		}
	}
	if t := c.Clustering.SimilarityThreshold; t <= 0 || t > 1 {
		return &domain.ConfigValidationError{
			Field: "clustering.similarity_threshold", Value: t, Reason: "must be in (0,1]",
		}
	}
	if c.Insight.Enabled && c.Insight.Model == "" {
		return &domain.ConfigValidationError{
			Field: "insight.model", Value: "", Reason: "required when insight is enabled",
		}
	}
	if c.Vision.PatchSize < 0 || c.Vision.ImageSize < 0 {
		return &domain.ConfigValidationError{
			Field: "vision", Value: c.Vision, Reason: "patch_size and image_size must not be negative",
		}
	}
	return nil
}

// RemoteAPIKey resolves the hosted-API credential from the configured
// environment variable.
func (c *Config) RemoteAPIKey() string {
	if c.Remote.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Remote.APIKeyEnv)
}
