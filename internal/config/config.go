// Package config loads the gateway's environment-driven configuration,
// following the same getEnvOrDefault/getEnvAsInt conventions as the rest of
// the corpus this gateway was adapted from.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// QueueTuning holds the worker/batch-size/wait-time knobs for one scheduler
// queue class. Defaults match spec.md §4.5; overridable via scheduler.yaml.
type QueueTuning struct {
	Workers  int           `yaml:"workers"`
	MaxBatch int           `yaml:"max_batch"`
	WaitTime time.Duration `yaml:"wait_time"`
}

// Config is the gateway's process-wide configuration.
type Config struct {
	Port    string
	GinMode string

	VLLMURL  string
	APIToken string

	EngineTimeout time.Duration

	// HTTP transport pool tuning for the engine client.
	EngineMaxIdleConns        int
	EngineMaxIdleConnsPerHost int
	EngineIdleConnTimeout     int // seconds

	// Tokenizer
	TokenizerModel string
	MaxInputLength int

	// Blob store
	BlobDir string

	// Batch request template
	BatchModel     string
	BatchMaxTokens int
	BatchPriority  int

	// Interactive queue slot wait ceiling (seconds), spec.md §4.7/§5.
	InteractiveSlotTimeoutSeconds int

	// Scheduler tuning, overridable by scheduler.yaml (see config.NewTuningWatcher).
	Interactive QueueTuning
	Batch       QueueTuning

	// Logging
	LogLevel  string
	LogFormat string

	// Admin/metrics mux port (secondary server, mirrors the teacher's
	// dual-server bootstrap).
	AdminPort string

	// CORS
	CORSAllowedOrigins string

	ServerShutdownTimeoutSeconds int

	// Optional path to the hot-reloadable scheduler tuning file.
	SchedulerConfigFile string
}

// AppConfig is populated once by Load and read thereafter.
var AppConfig *Config

// Load reads environment variables (and .env, if present) into AppConfig.
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using process environment")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		VLLMURL:  getEnvOrDefault("VLLM_URL", "http://vllm:8000"),
		APIToken: getEnvOrDefault("API_TOKEN", ""),

		EngineTimeout: getEnvAsDuration("ENGINE_TIMEOUT", 180*time.Second),

		EngineMaxIdleConns:        getEnvAsInt("ENGINE_MAX_IDLE_CONNS", 100),
		EngineMaxIdleConnsPerHost: getEnvAsInt("ENGINE_MAX_IDLE_CONNS_PER_HOST", 50),
		EngineIdleConnTimeout:     getEnvAsInt("ENGINE_IDLE_CONN_TIMEOUT_SECONDS", 90),

		TokenizerModel: getEnvOrDefault("TOKENIZER_MODEL", "qwen3-4b"),
		MaxInputLength: getEnvAsInt("MAX_INPUT_LENGTH", 4096),

		BlobDir: getEnvOrDefault("BLOB_DIR", "batch_files"),

		BatchModel:     getEnvOrDefault("BATCH_MODEL", "qwen3-4b"),
		BatchMaxTokens: getEnvAsInt("BATCH_MAX_TOKENS", 256),
		BatchPriority:  getEnvAsInt("BATCH_PRIORITY", 10),

		InteractiveSlotTimeoutSeconds: getEnvAsInt("INTERACTIVE_SLOT_TIMEOUT_SECONDS", 180),

		Interactive: QueueTuning{
			Workers:  getEnvAsInt("INTERACTIVE_WORKERS", 4),
			MaxBatch: getEnvAsInt("INTERACTIVE_MAX_BATCH", 1),
			WaitTime: getEnvAsDuration("INTERACTIVE_WAIT_TIME", 10*time.Millisecond),
		},
		Batch: QueueTuning{
			Workers:  getEnvAsInt("BATCH_WORKERS", 2),
			MaxBatch: getEnvAsInt("BATCH_MAX_BATCH", 128),
			WaitTime: getEnvAsDuration("BATCH_WAIT_TIME", 100*time.Millisecond),
		},

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		AdminPort: getEnvOrDefault("ADMIN_PORT", "8081"),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		SchedulerConfigFile: getEnvOrDefault("SCHEDULER_CONFIG_FILE", "scheduler.yaml"),
	}

	AppConfig = cfg
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("warning: failed to parse %s=%q as int, using default %d", key, v, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		log.Printf("warning: failed to parse %s=%q as duration, using default %v", key, v, defaultValue)
	}
	return defaultValue
}
