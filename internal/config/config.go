package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	HTTPPort      int    `env:"HTTP_PORT"`
	StorageDriver string `env:"STORAGE_DRIVER"`

	DBConfig struct {
		Host     string `env:"NEGOTIATIONS_DB_HOST"`
		Port     int    `env:"NEGOTIATIONS_DB_PORT"`
		User     string `env:"NEGOTIATIONS_DB_USER"`
		Password string `env:"NEGOTIATIONS_DB_PASSWORD"`
		Name     string `env:"NEGOTIATIONS_DB_NAME"`
		SSLMode  string `env:"NEGOTIATIONS_DB_SSLMODE"`
	}
	MigrationsPath string `env:"MIGRATIONS_PATH"`

	EventsEnabled               bool   `env:"EVENTS_ENABLED"`
	KafkaBrokerURL              string `env:"KAFKA_BROKER_URL"`
	KafkaNegotiationEventsTopic string `env:"KAFKA_NEGOTIATION_EVENTS_TOPIC"`
	KafkaProductEventsTopic     string `env:"KAFKA_PRODUCT_EVENTS_TOPIC"`
	KafkaConsumerGroup          string `env:"KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	ProductsSeedPath string `env:"PRODUCTS_SEED_PATH"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8083, &errs)
	cfg.StorageDriver = getEnvOrDefault("STORAGE_DRIVER", StorageDriverPostgres)

	cfg.DBConfig.Host = getEnvOrDefault("NEGOTIATIONS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("NEGOTIATIONS_DB_PORT", 5432, &errs)
	cfg.DBConfig.User = getEnvOrDefault("NEGOTIATIONS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("NEGOTIATIONS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("NEGOTIATIONS_DB_NAME", "negotiations_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("NEGOTIATIONS_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")

	cfg.EventsEnabled = getEnvAsBool("EVENTS_ENABLED", true, &errs)
	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaNegotiationEventsTopic = getEnvOrDefault("KAFKA_NEGOTIATION_EVENTS_TOPIC", "negotiation_events")
	cfg.KafkaProductEventsTopic = getEnvOrDefault("KAFKA_PRODUCT_EVENTS_TOPIC", "product_events")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "negotiations-service-group")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second, &errs)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond, &errs)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 100, &errs)

	cfg.CORSAllowedOrigins = splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"))
	cfg.ProductsSeedPath = getEnvOrDefault("PRODUCTS_SEED_PATH", "")

	switch cfg.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER: unknown driver %q", cfg.StorageDriver))
	}
	if cfg.OutboxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE: must be positive, got %d", cfg.OutboxBatchSize))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}
