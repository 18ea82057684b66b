package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

// Server captures process level configuration so main stays lean.
type Server struct {
	Addr          string
	DatabaseURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	AuditTopic    string
	PseudonymKey  []byte
	ArtifactDir   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// RedisConfig holds connection tuning for the pseudonym cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PseudonymCacheTTL enforces retention for cached pseudonym lookups.
var PseudonymCacheTTL = 15 * time.Minute

// FromEnv builds a Server config from environment variables. The secrets
// have no defaults: issuing codes with an ad-hoc pseudonym key would make
// every previously issued pseudonym unresolvable, and a known JWT key would
// let anyone mint valid tokens.
func FromEnv() (Server, error) {
	addr := os.Getenv("CURIA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	keyHex := os.Getenv("PSEUDONYM_KEY")
	if keyHex == "" {
		return Server{}, fmt.Errorf("PSEUDONYM_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return Server{}, fmt.Errorf("PSEUDONYM_KEY is not valid hex: %w", err)
	}

	artifactDir := os.Getenv("ARTIFACT_DIR")
	if artifactDir == "" {
		artifactDir = "/var/lib/curia/artifacts"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required")
	}

	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "curia.audit.events"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis:         redisFromEnv(),
		KafkaBrokers:  brokers,
		AuditTopic:    auditTopic,
		PseudonymKey:  key,
		ArtifactDir:   artifactDir,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     "curia",
		JWTAudience:   "curia-api",
	}, nil
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
