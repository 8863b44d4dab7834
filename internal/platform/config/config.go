package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration. Built from environment
// variables so main stays lean; zero values select in-memory backends.
type Server struct {
	Addr          string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string
	DraftTTL      time.Duration
}

// DefaultDraftTTL bounds how long an uncommitted draft may linger before the
// staging store expires it.
var DefaultDraftTTL = 72 * time.Hour

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("ATTEST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "attest.audit.events"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	draftTTL := DefaultDraftTTL
	if raw := os.Getenv("DRAFT_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			draftTTL = d
		}
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  brokers,
		AuditTopic:    topic,
		JWTSigningKey: jwtSigningKey,
		DraftTTL:      draftTTL,
	}
}
