// Package config builds runtime configuration from the environment so
// main stays lean. Every knob has a development default; production
// deployments override through HATCHERY_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	TokenIssuer   string
}

// Factory captures the registry's bootstrap parameters.
type Factory struct {
	// AdminAddress holds the one identity allowed on the admin surface.
	AdminAddress string
	// TemplateID and TemplateCodeHash describe the instance template the
	// factory starts with.
	TemplateID       uint64
	TemplateCodeHash string
	// FactoryCodeHash is the factory's own code identity on the bus.
	FactoryCodeHash string
	// BootSeedHex optionally pins the entropy seed; empty means a random
	// seed is drawn at first boot.
	BootSeedHex string
}

// RedisConfig captures Redis connection settings. An empty URL means
// Redis is not configured and in-memory stores are used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig captures Postgres connection settings. An empty URL
// means Postgres is not configured.
type PostgresConfig struct {
	URL string
}

// KafkaConfig captures audit stream settings. No brokers means audit
// events stay on the in-process trail.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is everything main needs to assemble the process.
type Config struct {
	Server   Server
	Factory  Factory
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("HATCHERY_ADDR", ":8080"),
			JWTSigningKey: envOr("HATCHERY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TokenIssuer:   envOr("HATCHERY_TOKEN_ISSUER", "hatchery"),
		},
		Factory: Factory{
			AdminAddress:     envOr("HATCHERY_ADMIN_ADDRESS", "admin"),
			TemplateID:       envUint("HATCHERY_TEMPLATE_ID", 1),
			TemplateCodeHash: envOr("HATCHERY_TEMPLATE_CODE_HASH", "dev-template-hash"),
			FactoryCodeHash:  envOr("HATCHERY_FACTORY_CODE_HASH", "dev-factory-hash"),
			BootSeedHex:      os.Getenv("HATCHERY_BOOT_SEED"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("HATCHERY_REDIS_URL"),
			PoolSize:     envInt("HATCHERY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("HATCHERY_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("HATCHERY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("HATCHERY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("HATCHERY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("HATCHERY_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("HATCHERY_KAFKA_BROKERS"),
			Topic:   envOr("HATCHERY_KAFKA_AUDIT_TOPIC", "hatchery.audit"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
