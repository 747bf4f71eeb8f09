// Package config loads service configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Storage       StorageConfig       `mapstructure:"storage"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds SQLite fallback tier configuration.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ElasticsearchConfig holds the document database tier configuration.
// Empty Addresses disables the tier and binds SQLite directly.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// StorageConfig holds raw file storage configuration. Empty S3 bucket
// disables the object storage tier and binds the local directory directly.
type StorageConfig struct {
	S3Region string `mapstructure:"s3_region"`
	S3Bucket string `mapstructure:"s3_bucket"`
	LocalDir string `mapstructure:"local_dir"`
}

// OpenAIConfig holds the cloud extraction and analysis backend
// configuration. Empty APIKey disables the cloud tier.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds batch processing configuration.
type PipelineConfig struct {
	Workers                 int   `mapstructure:"workers"`
	MaxFileSize             int64 `mapstructure:"max_file_size"`
	AnalyzeInvalidDocuments bool  `mapstructure:"analyze_invalid_documents"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads the config file, applies defaults and environment overrides,
// and validates the result.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)

	viper.SetDefault("database.path", "data/intake.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("storage.local_dir", "data/uploads")

	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.timeout", 60*time.Second)

	viper.SetDefault("pipeline.workers", 3)
	viper.SetDefault("pipeline.max_file_size", int64(10*1024*1024))
	viper.SetDefault("pipeline.analyze_invalid_documents", true)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Credentials come from the environment, never the config file.
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("elasticsearch.username", "ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "ELASTICSEARCH_PASSWORD")
	viper.BindEnv("storage.s3_region", "AWS_REGION")
	viper.BindEnv("storage.s3_bucket", "S3_BUCKET")
}

// Validate rejects configurations the service cannot start with. Cloud
// tiers are optional; the local fallbacks are not.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Pipeline.MaxFileSize <= 0 {
		return fmt.Errorf("pipeline.max_file_size must be positive")
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("storage.s3_region is required when storage.s3_bucket is set")
	}
	return nil
}
