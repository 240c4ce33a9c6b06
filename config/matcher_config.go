package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "matcher"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Logging
	LogLevel  string
	LogPretty bool

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OpenAI (semantic oracle)
	OpenAIAPIKey      string
	EmbeddingModel    string
	OracleTimeoutSec  int
	OracleMaxRetries  int
	OracleBatchSize   int
	OracleCacheTTLMin int

	// Scoring weights. Defaults mirror the published algorithm; every run
	// snapshots the effective values into the suggestion rows.
	WeightIntent   float64
	WeightSynergy  float64
	WeightMomentum float64
	WeightContext  float64

	// Scoring thresholds
	SemanticThreshold  float64 // oracle similarity floor for intent credit
	JaccardThreshold   float64 // lexical fallback floor
	MomentumDecayRate  float64 // per-day exponential decay
	ContextEventWeight float64 // credit per shared event
	CompetitorPenalty  float64 // synergy multiplier for same-niche referrals

	// Resolution
	FuzzyReviewThreshold float64 // name similarity that lands in review

	// Fairness and output shape
	PopularityCap int // Top-3 appearances per candidate per cycle
	TopK          int // suggestions kept per target
	ExpiryDays    int // suggestion lifetime from cycle start

	// Oracle enable/disable; false forces the lexical fallback everywhere
	OracleEnabled bool

	// Scorer concurrency
	ScorerShards int

	// Worker pool
	WorkerID            string
	WorkerMin           int
	WorkerMax           int
	WorkerQueueSize     int
	WorkerScaleInterval time.Duration
	WorkerIdleTimeout   time.Duration

	// Consumer (Redis Stream)
	ConsumerBatchSize  int
	ConsumerBlockMS    int
	ConsumerMaxRetries int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "matcher"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		OracleTimeoutSec:  getEnvInt("ORACLE_TIMEOUT_SEC", 30),
		OracleMaxRetries:  getEnvInt("ORACLE_MAX_RETRIES", 3),
		OracleBatchSize:   getEnvInt("ORACLE_BATCH_SIZE", 32),
		OracleCacheTTLMin: getEnvInt("ORACLE_CACHE_TTL_MIN", 1440),

		// Weights
		WeightIntent:   getEnvFloat("WEIGHT_INTENT", 0.45),
		WeightSynergy:  getEnvFloat("WEIGHT_SYNERGY", 0.25),
		WeightMomentum: getEnvFloat("WEIGHT_MOMENTUM", 0.20),
		WeightContext:  getEnvFloat("WEIGHT_CONTEXT", 0.10),

		// Thresholds
		SemanticThreshold:  getEnvFloat("SEMANTIC_THRESHOLD", 0.65),
		JaccardThreshold:   getEnvFloat("JACCARD_THRESHOLD", 0.30),
		MomentumDecayRate:  getEnvFloat("MOMENTUM_DECAY_RATE", 0.02),
		ContextEventWeight: getEnvFloat("CONTEXT_EVENT_WEIGHT", 0.25),
		CompetitorPenalty:  getEnvFloat("COMPETITOR_PENALTY", 0.1),

		// Resolution
		FuzzyReviewThreshold: getEnvFloat("FUZZY_REVIEW_THRESHOLD", 0.80),

		// Fairness
		PopularityCap: getEnvInt("POPULARITY_CAP", 5),
		TopK:          getEnvInt("TOP_K", 20),
		ExpiryDays:    getEnvInt("EXPIRY_DAYS", 7),

		OracleEnabled: getEnvBool("ORACLE_ENABLED", true),

		// Scorer
		ScorerShards: getEnvInt("SCORER_SHARDS", 8),

		// Worker pool
		WorkerID:            getEnv("WORKER_ID", generateWorkerID()),
		WorkerMin:           getEnvInt("WORKER_MIN", 2),
		WorkerMax:           getEnvInt("WORKER_MAX", 8),
		WorkerQueueSize:     getEnvInt("WORKER_QUEUE_SIZE", 100),
		WorkerScaleInterval: time.Duration(getEnvInt("WORKER_SCALE_INTERVAL_SEC", 10)) * time.Second,
		WorkerIdleTimeout:   time.Duration(getEnvInt("WORKER_IDLE_TIMEOUT_SEC", 30)) * time.Second,

		// Consumer
		ConsumerBatchSize:  getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:    getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

// Validate rejects weight configurations that cannot produce 0-100 scores.
func (c *Config) Validate() error {
	sum := c.WeightIntent + c.WeightSynergy + c.WeightMomentum + c.WeightContext
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	if c.PopularityCap < 1 {
		return fmt.Errorf("popularity cap must be >= 1, got %d", c.PopularityCap)
	}
	if c.ScorerShards < 1 {
		return fmt.Errorf("scorer shards must be >= 1, got %d", c.ScorerShards)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
