package config

import (
	"os"
	"strconv"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/pkg/validation"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `validate:"required"`
	Environment   string `validate:"required,oneof=development production"`
	JWTSigningKey string `validate:"notblank"`
	JWTIssuer     string `validate:"notblank"`
	JWTAudience   string `validate:"notblank"`
	AdminToken    string
	// UpstreamURL is the CRM application the /api routes are proxied to.
	UpstreamURL string `validate:"omitempty,url"`
	Redis         RedisConfig
	Kafka         KafkaConfig
}

// RedisConfig configures the distributed key-value backend. An empty URL
// keeps the key-value store in its in-process fallback mode.
type RedisConfig struct {
	URL          string
	PoolSize     int           `validate:"gt=0"`
	MinIdleConns int           `validate:"gte=0"`
	DialTimeout  time.Duration `validate:"gt=0"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
}

// KafkaConfig configures the secure log sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers  string
	LogTopic string `validate:"notblank"`
}

// IsProduction reports whether the production delivery policy applies.
func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// Validate checks the loaded configuration.
func (s Server) Validate() error {
	return validation.Validate(s)
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; production deployments must override it.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getEnv("ADDR", ":8080"),
		Environment:   env,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     getEnv("JWT_ISSUER", "chantierpro-auth"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "chantierpro-api"),
		AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
		UpstreamURL:   os.Getenv("UPSTREAM_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			// 5s bounds both connect and command time so a hung backend
			// degrades to the fallback instead of stalling requests.
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  os.Getenv("KAFKA_BROKERS"),
			LogTopic: getEnv("KAFKA_LOG_TOPIC", "chantierpro.secure-logs"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
