package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "tokencore/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	CoreAddress   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	DatabaseURL   string
	RateMaxAge    time.Duration
	LogLevel      slog.Level
	RequestLimit  RequestLimitConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
}

// RedisConfig configures the rate source client. An empty URL means rates
// are served from the in-process static source.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RequestLimitConfig throttles API calls per caller. A zero Limit disables
// throttling.
type RequestLimitConfig struct {
	Limit  int
	Window time.Duration
}

// KafkaConfig configures the audit event stream. No brokers means audit
// events stay in the configured SQL or memory store.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envOr("TOKENCORE_ADDR", ":8080"),
		CoreAddress:   envOr("TOKENCORE_CORE_ADDRESS", "0x0000000000000000000000000000000000000c0e"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("JWT_ISSUER", "tokencore"),
		JWTAudience:   envOr("JWT_AUDIENCE", "tokencore-api"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RateMaxAge:    durationOr("RATE_MAX_AGE", 0),
		LogLevel:      levelOr("LOG_LEVEL", slog.LevelInfo),
		RequestLimit: RequestLimitConfig{
			Limit:  intOr("REQUEST_LIMIT", 600),
			Window: durationOr("REQUEST_LIMIT_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "tokencore.audit"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func levelOr(key string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return level
}
