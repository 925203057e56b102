package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once in main and passed by reference into every
// constructor. Business logic never reads the environment directly.
type Config struct {
	HTTPAddr string

	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	JWT struct {
		Secret             string
		Issuer             string
		Audience           string
		AccessTokenExpiry  time.Duration
		RefreshTokenExpiry time.Duration
	}

	Mpesa struct {
		BaseURL        string
		ConsumerKey    string
		ConsumerSecret string
		ShortCode      string
		Passkey        string
		CallbackURL    string
		Timeout        time.Duration
	}

	Kafka struct {
		BrokerURL          string
		PaymentEventsTopic string
	}

	MigrationsPath string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", "0.0.0.0:8080")

	cfg.DB.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DB.User = getEnvOrDefault("DB_USER", "sokopay")
	cfg.DB.Password = getEnvOrDefault("DB_PASSWORD", "sokopay")
	cfg.DB.Name = getEnvOrDefault("DB_NAME", "sokopay")
	cfg.DB.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.JWT.Issuer = getEnvOrDefault("JWT_ISSUER", "sokopay")
	cfg.JWT.Audience = getEnvOrDefault("JWT_AUDIENCE", "sokopay-api")
	cfg.JWT.AccessTokenExpiry = time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_MINUTES", 15)) * time.Minute
	cfg.JWT.RefreshTokenExpiry = time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_DAYS", 7)) * 24 * time.Hour

	cfg.Mpesa.BaseURL = getEnvOrDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	cfg.Mpesa.ConsumerKey = os.Getenv("MPESA_CONSUMER_KEY")
	cfg.Mpesa.ConsumerSecret = os.Getenv("MPESA_CONSUMER_SECRET")
	cfg.Mpesa.ShortCode = getEnvOrDefault("MPESA_SHORTCODE", "174379")
	cfg.Mpesa.Passkey = os.Getenv("MPESA_PASSKEY")
	cfg.Mpesa.CallbackURL = os.Getenv("MPESA_CALLBACK_URL")
	cfg.Mpesa.Timeout = getEnvAsDuration("MPESA_HTTP_TIMEOUT", 30*time.Second)

	cfg.Kafka.BrokerURL = os.Getenv("KAFKA_BROKER_URL")
	cfg.Kafka.PaymentEventsTopic = getEnvOrDefault("KAFKA_PAYMENT_EVENTS_TOPIC", "payment_status_updates")

	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "internal/adapters/repository/postgres/migrations")

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) MigrationDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) KafkaBrokers() []string {
	return strings.Split(c.Kafka.BrokerURL, ",")
}

func (c *Config) KafkaEnabled() bool {
	return c.Kafka.BrokerURL != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
