package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "vaultbridge/pkg/domain"
	pstrings "vaultbridge/pkg/platform/strings"
)

// Config aggregates all runtime configuration. FromEnv builds it from
// environment variables with development defaults so main stays lean.
type Config struct {
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Mirror   MirrorConfig
	Ledger   LedgerConfig
	LogLevel string
}

// HTTPConfig captures HTTP server level configuration.
type HTTPConfig struct {
	Addr           string
	JWTSigningKey  string
	RequestTimeout time.Duration
}

// PostgresConfig holds the durable-store connection settings. An empty DSN
// selects the in-memory stores (single-process development mode).
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds cache-store connection settings. An empty URL selects the
// in-memory cache implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RelayConfig describes the external message relay. With no brokers
// configured the in-process relay is used instead of Kafka.
type RelayConfig struct {
	Brokers []string
	// TopicPrefix namespaces the per-domain topics, e.g. "vaultbridge".
	TopicPrefix string
	// ExpectedControlAddress is the single immutable sender the execution
	// dispatcher accepts operations from.
	ExpectedControlAddress id.Address
	// ExpectedExecutionAddress is the sender the control domain accepts
	// confirmations from.
	ExpectedExecutionAddress id.Address
	// SendTimeout bounds the synchronous part of initiation.
	SendTimeout time.Duration
	// DedupTTL bounds the delivered-message set. It should cover the
	// relay's maximum redelivery window; the default assumes 24h.
	DedupTTL time.Duration
}

// MirrorConfig drives the authorization mirror sync cadence.
type MirrorConfig struct {
	SyncInterval time.Duration
}

// LedgerConfig drives pending-operation staleness and reconciliation.
type LedgerConfig struct {
	// StaleAfter marks a pending operation stale for operator tooling.
	StaleAfter time.Duration
	// ReconcileInterval is the batch state-sync sweep cadence.
	ReconcileInterval time.Duration
	// ReconcileBatchSize caps accounts per BatchStateSync message.
	ReconcileBatchSize int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           envOr("VAULTBRIDGE_ADDR", ":8080"),
			JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			RequestTimeout: envDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 20),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Relay: RelayConfig{
			Brokers:                  splitList(os.Getenv("RELAY_BROKERS")),
			TopicPrefix:              envOr("RELAY_TOPIC_PREFIX", "vaultbridge"),
			ExpectedControlAddress:   id.Address(envOr("RELAY_EXPECTED_CONTROL_ADDRESS", "vaultbridge-dev")),
			ExpectedExecutionAddress: id.Address(envOr("RELAY_EXPECTED_EXECUTION_ADDRESS", "vaultbridge-dev")),
			SendTimeout:              envDuration("RELAY_SEND_TIMEOUT", 10*time.Second),
			DedupTTL:                 envDuration("DEDUP_TTL", 24*time.Hour),
		},
		Mirror: MirrorConfig{
			SyncInterval: envDuration("MIRROR_SYNC_INTERVAL", time.Hour),
		},
		Ledger: LedgerConfig{
			StaleAfter:         envDuration("PENDING_STALE_AFTER", time.Hour),
			ReconcileInterval:  envDuration("RECONCILE_INTERVAL", 6*time.Hour),
			ReconcileBatchSize: envInt("RECONCILE_BATCH_SIZE", 50),
		},
		LogLevel: envOr("LOG_LEVEL", "info"),
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
