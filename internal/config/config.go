package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Sale       SaleConfig
	Log        LogConfig
	Migrations MigrationConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	ConnRetries  int
}

type RedisConfig struct {
	Addr           string
	CreditCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	SaleCompleted     string
	CreditTransaction string
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

type SaleConfig struct {
	PaymentTolerance  float64
	AllowCreditDebt   bool
	MaxQuantityPerRow int
	QRSecret          string
}

type LogConfig struct {
	Dir    string
	Prefix string
}

type MigrationConfig struct {
	AutoMigrate bool
	SeedData    bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "sales_user"),
			Password:     getEnv("DB_PASSWORD", "sales_pass"),
			Database:     getEnv("DB_NAME", "waterpark_sales"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnRetries:  getEnvInt("DB_CONNECT_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			CreditCacheTTL: time.Duration(getEnvInt("CREDIT_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getEnv("KAFKA_GROUP_ID", "ledger-reconciler"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				SaleCompleted:     getEnv("KAFKA_TOPIC_SALE_COMPLETED", "waterpark.sale.completed"),
				CreditTransaction: getEnv("KAFKA_TOPIC_CREDIT_TRANSACTION", "waterpark.credit.transaction.recorded"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		Sale: SaleConfig{
			PaymentTolerance:  getEnvFloat("SALE_PAYMENT_TOLERANCE", 0.01),
			AllowCreditDebt:   getEnvBool("SALE_ALLOW_CREDIT_DEBT", true),
			MaxQuantityPerRow: getEnvInt("SALE_MAX_QUANTITY_PER_ROW", 10000),
			QRSecret:          getEnv("QR_SECRET_KEY", "change-me"),
		},
		Log: LogConfig{
			Dir:    getEnv("LOG_DIR", "logs"),
			Prefix: getEnv("LOG_PREFIX", "sales"),
		},
		Migrations: MigrationConfig{
			AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
			SeedData:    getEnvBool("SEED_DATA", false),
		},
	}
}

// PostgresDSN returns POSTGRES_DSN when set, otherwise a DSN built from the
// individual DB_* variables.
func (c DatabaseConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
