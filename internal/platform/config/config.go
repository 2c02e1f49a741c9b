package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	DevMode       bool

	// PolicyPath points at the YAML governance policy / risk weight file.
	// Empty means compiled-in defaults.
	PolicyPath string

	// PublisherKeysPath points at the YAML map of publisher identity to
	// base64 ed25519 public key. Empty means no registered ed25519 keys.
	PublisherKeysPath string
	// PGPKeyringPath points at an armored PGP keyring for manifests signed
	// with scheme "pgp". Empty disables that scheme.
	PGPKeyringPath string

	// ScanWorkers bounds the orchestrator worker pool.
	ScanWorkers int
	// ScanQueueSize bounds in-flight tickets before submissions are rejected.
	ScanQueueSize int

	// RedisAddr, when set, switches the scan queue to Redis so multiple nodes
	// can share the backlog.
	RedisAddr string

	// PostgresDSN, when set, switches the audit store to Postgres.
	PostgresDSN string

	// KafkaBrokers, when set, mirrors audit entries to the given topic.
	KafkaBrokers []string
	KafkaTopic   string

	// SandboxTimeout is the hard wall-clock limit per sandbox invocation.
	SandboxTimeout time.Duration
	// SandboxMemoryBytes limits sandbox linear memory.
	SandboxMemoryBytes int64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               getenv("MANIFESTGATE_ADDR", ":8080"),
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		DevMode:            os.Getenv("DEV_MODE") == "true",
		PolicyPath:         os.Getenv("GOVERNANCE_POLICY_PATH"),
		PublisherKeysPath:  os.Getenv("PUBLISHER_KEYS_PATH"),
		PGPKeyringPath:     os.Getenv("PGP_KEYRING_PATH"),
		ScanWorkers:        getint("SCAN_WORKERS", 4),
		ScanQueueSize:      getint("SCAN_QUEUE_SIZE", 256),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		KafkaTopic:         getenv("KAFKA_AUDIT_TOPIC", "manifestgate.audit"),
		SandboxTimeout:     getduration("SANDBOX_TIMEOUT", 3*time.Second),
		SandboxMemoryBytes: int64(getint("SANDBOX_MEMORY_BYTES", 64*1024*1024)),
	}
	if cfg.JWTSigningKey == "" {
		// Default for development - must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitComma(brokers)
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
