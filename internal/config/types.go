package config

import "time"

// Config is the full application configuration.
type Config struct {
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Insight    InsightConfig    `mapstructure:"insight"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EstimatorConfig controls candidate retention per generation step.
type EstimatorConfig struct {
	TopK         int     `mapstructure:"top_k"`
	MinTokenProb float64 `mapstructure:"min_token_prob"`
}

// RemoteConfig describes the hosted generation backend, when one is used.
// APIKeyEnv names the environment variable holding the credential so keys
// never live in config files.
type RemoteConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// InsightConfig describes the secondary model that explains uncertainty
// patterns.
type InsightConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ClusteringConfig tunes the semantic-equivalence strategy.
type ClusteringConfig struct {
	RulesFile           string  `mapstructure:"rules_file"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// VisionConfig seeds the vision-language patch grid. Zero values defer to
// the model's native configuration at analysis time.
type VisionConfig struct {
	PatchSize   int  `mapstructure:"patch_size"`
	ImageSize   int  `mapstructure:"image_size"`
	UseCLSToken bool `mapstructure:"use_cls_token"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Theme      string `mapstructure:"theme"`
	Directory  string `mapstructure:"directory"`
	FileOutput bool   `mapstructure:"file_output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}
