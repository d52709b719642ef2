package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {

	// JWT token configuration
	JWTConfig struct {
		ApiSecret          string `envconfig:"API_SECRET"`
		Issuer             string `envconfig:"JWT_ISSUER" default:"https://identity.parley.chat/"`
		Audience           string `envconfig:"JWT_AUDIENCE" default:"https://parley.chat/"`
		ExpireDelta        int    `envconfig:"EXPIRE_DELTA" default:"7"`
		ResetExpireMinutes int    `envconfig:"RESET_EXPIRE_MINUTES" default:"15"`
		CookieSecure       bool   `envconfig:"COOKIE_SECURE" default:"false"`
	}

	// Application configuration
	AppConfig struct {
		Port             int    `envconfig:"PARLEY_PORT" default:"8080"`
		Address          string `envconfig:"PARLEY_ADDRESS"`
		PublicURL        string `envconfig:"PARLEY_PUBLIC_URL" default:"http://localhost:4200"`
		IdentityURL      string `envconfig:"IDENTITY_URL" default:"http://localhost:8080"`
		ShutdownTimeout  int    `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"15"`
		AllowedOriginsCS string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:4200"`
	}

	// Database configuration for the identity store
	DatabaseConfig struct {
		DatabaseHost                      string `envconfig:"DB_HOST"`
		DatabaseUser                      string `envconfig:"DB_USER"`
		DatabasePassword                  string `envconfig:"DB_PASSWORD"`
		DatabaseName                      string `envconfig:"DB_NAME"`
		DatabasePort                      int32  `envconfig:"DB_PORT" default:"5432"`
		DatabasePoolMaxConnections        int32  `envconfig:"DB_MAX_CON" default:"10"`
		DatabasePoolMinConnections        int32  `envconfig:"DB_POOL_MIN_CON" default:"1"`
		DatabasePoolMaxConnectionLifetime int    `envconfig:"DB_POOL_MAX_LIFETIME" default:"1"`
	}

	// MongoDB configuration for the profile store
	MongoConfig struct {
		URI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
		Database string `envconfig:"MONGO_DB" default:"parley_users"`
	}

	// Redis configuration for event deduplication
	RedisConfig struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
		DedupTTL int    `envconfig:"REDIS_DEDUP_TTL_MINUTES" default:"1440"`
	}

	// RabbitMQ configuration
	RabbitMQConfig struct {
		RabbitMQUser      string `envconfig:"RABBITMQ_USER" default:"guest"`
		RabbitMQPass      string `envconfig:"RABBITMQ_PASSWORD" default:"guest"`
		RabbitMQAddress   string `envconfig:"RABBITMQ_ADDRESS" default:"localhost"`
		RabbitMQPort      int    `envconfig:"RABBITMQ_PORT" default:"5672"`
		DeadLetter        bool   `envconfig:"RABBITMQ_DEAD_LETTER" default:"true"`
		RetryDelaySeconds int    `envconfig:"RABBITMQ_RETRY_DELAY_SECONDS" default:"5"`
		Prefetch          int    `envconfig:"RABBITMQ_PREFETCH" default:"8"`
	}

	// Outbox relay configuration
	OutboxConfig struct {
		PollIntervalMillis    int `envconfig:"OUTBOX_POLL_INTERVAL_MS" default:"500"`
		BatchSize             int `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
		MaxAttempts           int `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"10"`
		MaxBackoffSeconds     int `envconfig:"OUTBOX_MAX_BACKOFF_SECONDS" default:"300"`
		PublishTimeoutSeconds int `envconfig:"OUTBOX_PUBLISH_TIMEOUT_SECONDS" default:"10"`
		RetentionHours        int `envconfig:"OUTBOX_RETENTION_HOURS" default:"168"`
		SweepMinutes          int `envconfig:"MAINTENANCE_SWEEP_MINUTES" default:"60"`
	}

	// SMTP configuration for outbound notifications
	EmailConfig struct {
		SmtpServer  string `envconfig:"SMTP_SERVER"`
		Port        int    `envconfig:"SMTP_PORT" default:"587"`
		SenderEmail string `envconfig:"SMTP_SENDER_EMAIL"`
		SenderName  string `envconfig:"SMTP_SENDER_NAME" default:"Parley"`
		Username    string `envconfig:"SMTP_USERNAME"`
		Password    string `envconfig:"SMTP_PASSWORD"`
	}
}

// The LoadConfig function loads the env file specified and returns
// a valid configuration object ready for use
func LoadConfig() (*Config, error) {
	cfg := Config{}

	// The .env file is optional outside local development.
	_ = godotenv.Load()

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("Failed to load environment variables: %v", err)
	}

	return &cfg, nil
}

// AMQPURI builds the broker connection string.
func (c *Config) AMQPURI() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQConfig.RabbitMQUser,
		c.RabbitMQConfig.RabbitMQPass,
		c.RabbitMQConfig.RabbitMQAddress,
		c.RabbitMQConfig.RabbitMQPort,
	)
}

// PostgresURI builds the identity store connection string.
func (c *Config) PostgresURI() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		c.DatabaseConfig.DatabaseUser,
		c.DatabaseConfig.DatabasePassword,
		c.DatabaseConfig.DatabaseHost,
		c.DatabaseConfig.DatabasePort,
		c.DatabaseConfig.DatabaseName,
	)
}

func (c *Config) TokenTTL() time.Duration {
	return 24 * time.Hour * time.Duration(c.JWTConfig.ExpireDelta)
}

func (c *Config) ResetTokenTTL() time.Duration {
	return time.Minute * time.Duration(c.JWTConfig.ResetExpireMinutes)
}

func (c *Config) ConsumerRetryDelay() time.Duration {
	return time.Second * time.Duration(c.RabbitMQConfig.RetryDelaySeconds)
}

func (c *Config) OutboxPollInterval() time.Duration {
	return time.Millisecond * time.Duration(c.OutboxConfig.PollIntervalMillis)
}

func (c *Config) OutboxMaxBackoff() time.Duration {
	return time.Second * time.Duration(c.OutboxConfig.MaxBackoffSeconds)
}

func (c *Config) OutboxPublishTimeout() time.Duration {
	return time.Second * time.Duration(c.OutboxConfig.PublishTimeoutSeconds)
}

func (c *Config) OutboxRetention() time.Duration {
	return time.Hour * time.Duration(c.OutboxConfig.RetentionHours)
}

func (c *Config) SweepInterval() time.Duration {
	return time.Minute * time.Duration(c.OutboxConfig.SweepMinutes)
}

func (c *Config) DedupTTL() time.Duration {
	return time.Minute * time.Duration(c.RedisConfig.DedupTTL)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AppConfig.AllowedOriginsCS, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
