package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	DSN             string        `mapstructure:"dsn"`    // postgres connection string
	Path            string        `mapstructure:"path"`   // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// GatewayConfig describes the OpenAI-compatible model gateway used for
// embeddings and chat completions.
type GatewayConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	CompletionModel string        `mapstructure:"completion_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	ChunkSize       int           `mapstructure:"chunk_size"`        // records stored per chunk
	VectorBatchSize int           `mapstructure:"vector_batch_size"` // records embedded per gateway call
	MaxFailures     int           `mapstructure:"max_failures"`      // consecutive batch failures before the job fails
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

type SimilarityConfig struct {
	DefaultLimit    int `mapstructure:"default_limit"`
	RerankThreshold int `mapstructure:"rerank_threshold"` // critical relevance score, 0-100
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/corpusd.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("gateway.base_url", "http://localhost:1234/v1")
	v.SetDefault("gateway.embedding_model", "text-embedding-nomic-embed-text-v1.5")
	v.SetDefault("gateway.completion_model", "meta-llama-3-8b-instruct")
	v.SetDefault("gateway.timeout", 120*time.Second)
	v.SetDefault("ingest.chunk_size", 100)
	v.SetDefault("ingest.vector_batch_size", 50)
	v.SetDefault("ingest.max_failures", 3)
	v.SetDefault("ingest.retry_backoff", 2*time.Second)
	v.SetDefault("similarity.default_limit", 5)
	v.SetDefault("similarity.rerank_threshold", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("gateway.base_url", "AI_HOST")
	v.BindEnv("gateway.api_key", "AI_API_KEY")
	v.BindEnv("gateway.embedding_model", "EMBEDDING_MODEL")
	v.BindEnv("gateway.completion_model", "LLM_MODEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
