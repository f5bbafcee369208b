package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	Media     MediaConfig
	Inference InferenceConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

// OIDCConfig enables JWKS-based token verification when Issuer is set.
type OIDCConfig struct {
	Issuer   string
	ClientID string
}

// MediaConfig configures the S3-compatible video object store.
type MediaConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	SignedURLExpiry time.Duration
}

type InferenceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// QueueConfig tunes the ticketing and notification core.
type QueueConfig struct {
	ConnectionTTL     time.Duration
	DeliveryTimeout   time.Duration
	FanoutBatchSize   int
	FanoutConcurrency int
	CounterRetries    int
	CounterBackoff    time.Duration
	JobRetention      time.Duration
	GuardTTL          time.Duration
}

type RateLimitConfig struct {
	GeneratePerHour int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("oidc.issuer", "")
	viper.SetDefault("oidc.client_id", "")
	viper.SetDefault("media.endpoint", "")
	viper.SetDefault("media.region", "auto")
	viper.SetDefault("media.access_key_id", "")
	viper.SetDefault("media.secret_access_key", "")
	viper.SetDefault("media.bucket_name", "clipgen-videos")
	viper.SetDefault("media.public_url", "")
	viper.SetDefault("media.signed_url_expiry", "1h")
	viper.SetDefault("inference.base_url", "")
	viper.SetDefault("inference.timeout", "10m")
	viper.SetDefault("queue.connection_ttl", "2h")
	viper.SetDefault("queue.delivery_timeout", "5s")
	viper.SetDefault("queue.fanout_batch_size", 100)
	viper.SetDefault("queue.fanout_concurrency", 16)
	viper.SetDefault("queue.counter_retries", 3)
	viper.SetDefault("queue.counter_backoff", "50ms")
	viper.SetDefault("queue.job_retention", "24h")
	viper.SetDefault("queue.guard_ttl", "1h")
	viper.SetDefault("ratelimit.generate_per_hour", 10)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Media: MediaConfig{
			Endpoint:        viper.GetString("media.endpoint"),
			Region:          viper.GetString("media.region"),
			AccessKeyID:     viper.GetString("media.access_key_id"),
			SecretAccessKey: viper.GetString("media.secret_access_key"),
			BucketName:      viper.GetString("media.bucket_name"),
			PublicURL:       viper.GetString("media.public_url"),
			SignedURLExpiry: viper.GetDuration("media.signed_url_expiry"),
		},
		Inference: InferenceConfig{
			BaseURL: viper.GetString("inference.base_url"),
			Timeout: viper.GetDuration("inference.timeout"),
		},
		Queue: QueueConfig{
			ConnectionTTL:     viper.GetDuration("queue.connection_ttl"),
			DeliveryTimeout:   viper.GetDuration("queue.delivery_timeout"),
			FanoutBatchSize:   viper.GetInt("queue.fanout_batch_size"),
			FanoutConcurrency: viper.GetInt("queue.fanout_concurrency"),
			CounterRetries:    viper.GetInt("queue.counter_retries"),
			CounterBackoff:    viper.GetDuration("queue.counter_backoff"),
			JobRetention:      viper.GetDuration("queue.job_retention"),
			GuardTTL:          viper.GetDuration("queue.guard_ttl"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
	}

	return cfg, nil
}
