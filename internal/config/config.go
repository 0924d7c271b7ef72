package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SessionTTLHours int

	QdrantURL        string
	QdrantCollection string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	RerankURL string

	NATSURL     string
	NATSSubject string

	SearchVectorTimeoutMS int
	SearchGraphTimeoutMS  int
	SearchRerankTimeoutMS int
	FusionRRFK            int

	IntentMatchThreshold float64

	APIRateLimitRPS        float64
	APIRateLimitBurst      int
	APIMaxInFlight         int
	APIBackpressureWaitMS  int
	ShutdownTimeoutSeconds int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		Neo4jURI:      mustEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     mustEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: mustEnv("NEO4J_PASSWORD", "neo4j"),

		RedisAddr:       mustEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   mustEnv("REDIS_PASSWORD", ""),
		RedisDB:         mustEnvInt("REDIS_DB", 0),
		SessionTTLHours: mustEnvInt("SESSION_TTL_HOURS", 24),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "entities"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		RerankURL: mustEnv("RERANK_URL", ""),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "flow.updated"),

		SearchVectorTimeoutMS: mustEnvInt("SEARCH_VECTOR_TIMEOUT_MS", 5000),
		SearchGraphTimeoutMS:  mustEnvInt("SEARCH_GRAPH_TIMEOUT_MS", 5000),
		SearchRerankTimeoutMS: mustEnvInt("SEARCH_RERANK_TIMEOUT_MS", 5000),
		FusionRRFK:            mustEnvInt("FUSION_RRF_K", 60),

		IntentMatchThreshold: mustEnvFloat("INTENT_MATCH_THRESHOLD", 0.2),

		APIRateLimitRPS:        mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:      mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:         mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIBackpressureWaitMS:  mustEnvInt("API_BACKPRESSURE_WAIT_MS", 100),
		ShutdownTimeoutSeconds: mustEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
