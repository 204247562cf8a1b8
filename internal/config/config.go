package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Tickets  TicketConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Dir     string
	Level   string
	Service string
}

type DatabaseConfig struct {
	DSN            string
	Host           string
	Port           string
	Username       string
	Password       string
	Database       string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	ConnectRetries int
	MigrationsDir  string
	AutoMigrate    bool
}

type RedisConfig struct {
	Enabled            bool
	Addr               string
	Password           string
	DB                 int
	SuggestionCacheTTL time.Duration
	MergeLockTTL       time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	ReferralAttributed string
	SuggestionMerged   string
	TicketIssued       string
}

type AuthConfig struct {
	JWTSecret     string
	OIDCIssuer    string
	OIDCClientID  string
	SessionCookie string
}

type TicketConfig struct {
	QRSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Dir:     getEnv("LOG_DIR", "logs"),
			Level:   getEnv("LOG_LEVEL", "INFO"),
			Service: getEnv("SERVICE_NAME", "speakers"),
		},
		Database: DatabaseConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Username:       getEnv("DB_USERNAME", "speakers"),
			Password:       getEnv("DB_PASSWORD", "speakers"),
			Database:       getEnv("DB_NAME", "speakers"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
			MigrationsDir:  getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:    getEnvBool("AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Enabled:            getEnvBool("REDIS_ENABLED", true),
			Addr:               getEnv("REDIS_ADDR", "localhost:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 getEnvInt("REDIS_DB", 0),
			SuggestionCacheTTL: getEnvDuration("SUGGESTION_CACHE_TTL", 30*time.Second),
			MergeLockTTL:       getEnvDuration("MERGE_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				ReferralAttributed: getEnv("KAFKA_TOPIC_REFERRAL_ATTRIBUTED", "speakers.referral.attributed"),
				SuggestionMerged:   getEnv("KAFKA_TOPIC_SUGGESTION_MERGED", "speakers.suggestion.merged"),
				TicketIssued:       getEnv("KAFKA_TOPIC_TICKET_ISSUED", "speakers.ticket.issued"),
			},
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			OIDCIssuer:    os.Getenv("OIDC_ISSUER"),
			OIDCClientID:  os.Getenv("OIDC_CLIENT_ID"),
			SessionCookie: getEnv("SESSION_COOKIE", "sb-access-token"),
		},
		Tickets: TicketConfig{
			QRSecret: getEnv("QR_SECRET_KEY", "change-me"),
		},
	}
}

// PostgresDSN prefers POSTGRES_DSN and otherwise assembles one from the DB_* parts.
func (c DatabaseConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// All lists every topic the service publishes to.
func (t TopicConfig) All() []string {
	return []string{t.ReferralAttributed, t.SuggestionMerged, t.TicketIssued}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
