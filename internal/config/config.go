package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver      string // sqlite|postgres|memory
	DBDSN         string
	StoreKey      string // well-known key holding the attempts array
	StoreMaxBytes int    // 0 = unlimited

	BlobBasePath   string // material extraction cache
	MaxUploadBytes int64

	LLMProvider       string // openai|anthropic
	LLMAPIKey         string
	LLMModel          string
	LLMBaseURL        string // openai-compatible endpoints only
	LLMRateLimit      float64 // requests per second
	LLMBurst          int
	GenerationTimeout time.Duration
	AllowBYOK         bool

	DefaultQuestionCount int
	MaxQuestionCount     int

	SessionSecret string
	SessionTTL    time.Duration

	CORSOrigins []string

	LogLevel  string
	LogFormat string
}

// FromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		DBDriver:      envOr("DB_DRIVER", "sqlite"),
		DBDSN:         envOr("DB_DSN", ""),
		StoreKey:      envOr("STORE_KEY", "studyAttempts"),
		StoreMaxBytes: envInt("STORE_MAX_BYTES", 5<<20),

		BlobBasePath:   envOr("BLOB_BASE_PATH", "./data"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 20<<20)),

		LLMProvider:       envOr("LLM_PROVIDER", "openai"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          envOr("LLM_MODEL", ""),
		LLMBaseURL:        envOr("LLM_BASE_URL", ""),
		LLMRateLimit:      envFloat("LLM_RATE_LIMIT", 2),
		LLMBurst:          envInt("LLM_BURST", 4),
		GenerationTimeout: envDuration("GENERATION_TIMEOUT", 90*time.Second),
		AllowBYOK:         envBool("ALLOW_BYOK", true),

		DefaultQuestionCount: envInt("DEFAULT_QUESTION_COUNT", 10),
		MaxQuestionCount:     envInt("MAX_QUESTION_COUNT", 50),

		SessionSecret: envOr("SESSION_SECRET", "studyd-dev-secret"),
		SessionTTL:    envDuration("SESSION_TTL", 12*time.Hour),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}
func envFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(k)), 64)
	if err != nil {
		return def
	}
	return f
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
