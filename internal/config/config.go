// Package config loads the service configuration from .env files and the
// process environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"stealthcompany.com/labportal/internal/cache"
	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/storage"
	"stealthcompany.com/labportal/pkg/zerolog_config"
)

type Config struct {
	Server    Server    `env:", prefix=API_"`
	Log       Log       `env:", prefix=LOG_"`
	Couchbase Couchbase `env:", prefix=COUCHBASE_"`
	Redis     Redis     `env:", prefix=REDIS_"`
	Minio     Minio     `env:", prefix=MINIO_"`
	Auth      Auth      `env:", prefix=AUTH_"`
	Metrics   Metrics   `env:", prefix=METRICS_"`

	DraftTTL time.Duration `env:"DRAFT_TTL, default=24h"`
	// CatalogueWait blocks startup until cmd/seed marks the catalogue ready
	CatalogueWait time.Duration `env:"CATALOGUE_WAIT, default=0s"`
}

type Server struct {
	Port            string        `env:"PORT, default=8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT, default=15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT, default=60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=30s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES, default=33554432"`
}

type Log struct {
	Level            string `env:"LEVEL, default=info"`
	JSON             bool   `env:"JSON, default=false"`
	ElasticsearchURL string `env:"ELASTICSEARCH_URL"`
	Index            string `env:"INDEX, default=logs"`
}

// Couchbase is empty-URL tolerant; the API falls back to the memory store.
type Couchbase struct {
	URL            string        `env:"URL"`
	Username       string        `env:"USERNAME, default=Administrator"`
	Password       string        `env:"PASSWORD"`
	Bucket         string        `env:"BUCKET, default=labportal"`
	Scope          string        `env:"SCOPE, default=portal"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT, default=10s"`
	Retries        int           `env:"RETRIES, default=10"`
	RetryDelay     time.Duration `env:"RETRY_DELAY, default=3s"`
	TxnTimeout     time.Duration `env:"TXN_TIMEOUT, default=15s"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB, default=0"`
	Prefix   string `env:"PREFIX, default=labportal:"`
}

type Minio struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET, default=labportal"`
	UseSSL    bool   `env:"USE_SSL, default=false"`
}

type Auth struct {
	Secret     string        `env:"SECRET, required"`
	SessionTTL time.Duration `env:"SESSION_TTL, default=8h"`
}

type Metrics struct {
	Business       bool          `env:"BUSINESS, default=true"`
	System         bool          `env:"SYSTEM, default=false"`
	SystemInterval time.Duration `env:"SYSTEM_INTERVAL, default=15s"`
}

// LoadDotEnv reads the first .env file found in paths. Missing files are not
// an error; the environment may already be set.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			log.Info().Str("path", p).Msg("Loaded .env file")
			return
		}
	}
	log.Info().Msg("No .env file found, assuming environment variables are set")
}

// Load decodes the process environment into a Config
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith decodes from an arbitrary lookuper
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.Auth.Secret) < 16 {
		return fmt.Errorf("AUTH_SECRET must be at least 16 bytes")
	}
	if c.Couchbase.URL != "" && c.Couchbase.Password == "" {
		return fmt.Errorf("COUCHBASE_PASSWORD is required when COUCHBASE_URL is set")
	}
	if c.Minio.Endpoint != "" && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	if c.DraftTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be positive")
	}
	return nil
}

func (l Log) options() zerolog_config.Options {
	return zerolog_config.Options{
		Level:            l.Level,
		JSON:             l.JSON,
		ElasticsearchURL: l.ElasticsearchURL,
		Index:            l.Index,
	}
}

func (cb Couchbase) options() dal.CouchbaseConfig {
	return dal.CouchbaseConfig{
		URL:            cb.URL,
		Username:       cb.Username,
		Password:       cb.Password,
		Bucket:         cb.Bucket,
		Scope:          cb.Scope,
		ConnectTimeout: cb.ConnectTimeout,
		Retries:        cb.Retries,
		RetryDelay:     cb.RetryDelay,
		TxnTimeout:     cb.TxnTimeout,
	}
}

// LogOptions maps the log section onto logger options
func (c *Config) LogOptions() zerolog_config.Options { return c.Log.options() }

func (c *Config) CouchbaseConfig() dal.CouchbaseConfig { return c.Couchbase.options() }

func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
	}
}

func (c *Config) MinioConfig() storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:  c.Minio.Endpoint,
		AccessKey: c.Minio.AccessKey,
		SecretKey: c.Minio.SecretKey,
		Bucket:    c.Minio.Bucket,
		UseSSL:    c.Minio.UseSSL,
	}
}

// Seed configures the catalogue import command
type Seed struct {
	Log       Log       `env:", prefix=LOG_"`
	Couchbase Couchbase `env:", prefix=COUCHBASE_"`

	File    string        `env:"CATALOGUE_FILE, default=config/catalogue.yaml"`
	LockTTL time.Duration `env:"SEED_LOCK_TTL, default=10m"`
}

// LoadSeed decodes the seed command's settings. Unlike the API it needs a cluster.
func LoadSeed(ctx context.Context, l envconfig.Lookuper) (*Seed, error) {
	var s Seed
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &s,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("failed to load seed config: %w", err)
	}
	if s.Couchbase.URL == "" || s.Couchbase.Password == "" {
		return nil, fmt.Errorf("COUCHBASE_URL and COUCHBASE_PASSWORD are required")
	}
	return &s, nil
}

func (s *Seed) LogOptions() zerolog_config.Options { return s.Log.options() }

func (s *Seed) CouchbaseConfig() dal.CouchbaseConfig { return s.Couchbase.options() }
