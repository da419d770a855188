package config

import (
	"context"
	"time"
)

// Config is the process-wide configuration passed at server construction.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Mongo  MongoConfig  `koanf:"mongo"`
	Blob   BlobConfig   `koanf:"blob"`
	Worker WorkerConfig `koanf:"worker"`
	Log    LogConfig    `koanf:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"      validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MongoConfig selects the metadata backend.
type MongoConfig struct {
	// ConnectionString is seeded from MONGO_CONNECTION_STRING for
	// compatibility with the existing deployment.
	ConnectionString string        `koanf:"connection_string" validate:"required"`
	Database         string        `koanf:"database"          validate:"required"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
}

// BlobConfig locates the content store on disk.
type BlobConfig struct {
	Root string `koanf:"root" validate:"required"`
}

// WorkerConfig bounds background ingestion work.
type WorkerConfig struct {
	MaxConcurrency int `koanf:"max_concurrency" validate:"min=1"`
	StreamBuffer   int `koanf:"stream_buffer"   validate:"min=1"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	JSON   bool   `koanf:"json"`
	Source bool   `koanf:"source"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		Mongo: MongoConfig{
			ConnectionString: "mongodb://localhost:27017",
			Database:         "ragplane",
			ConnectTimeout:   10 * time.Second,
		},
		Blob: BlobConfig{
			Root: "./data_store",
		},
		Worker: WorkerConfig{
			MaxConcurrency: 8,
			StreamBuffer:   64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

type ctxKey struct{}

// ContextWithConfig attaches the config to ctx.
func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the config stored in ctx, or the defaults.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	return Default()
}
