package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL  string
	OpenAIAPIKey string
	Port         string

	// Batch runner knobs
	BatchSize           int
	RecordDelay         time.Duration // pause between records in a batch
	RescoreThreshold    int           // completed records below this re-enter the pool
	ClaimTTL            time.Duration // processing claim expiry
	MaxTransientRetries int

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// OpenAI client settings
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Source trust overrides (yaml file listing recognized third-party tags)
	SourcesFile string

	// Logging settings
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool

	// Environment & profiling/metrics
	Env              string // development, staging, production
	ProfilingEnabled bool
	ProfilingPort    string // also used as admin port
	MetricsEnabled   bool
	MetricsPath      string

	// Health check settings
	HealthCheckPath string

	ConfigReloadIntervalSeconds int
}

func Load() *Config {
	batchSize, _ := strconv.Atoi(getEnv("BATCH_SIZE", "5"))
	recordDelay, _ := time.ParseDuration(getEnv("RECORD_DELAY", "2s"))
	rescoreThreshold, _ := strconv.Atoi(getEnv("RESCORE_THRESHOLD", "70"))
	claimTTL, _ := time.ParseDuration(getEnv("CLAIM_TTL", "15m"))
	maxRetries, _ := strconv.Atoi(getEnv("MAX_TRANSIENT_RETRIES", "5"))

	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "8s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "6s"))

	openAIModel := getEnv("OPENAI_MODEL", "gpt-4o-mini")
	openAITemp, _ := strconv.ParseFloat(getEnv("OPENAI_TEMPERATURE", "0.1"), 64)
	openAIMaxTokens, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "400"))
	openAIReqTimeoutSec, _ := strconv.Atoi(getEnv("OPENAI_REQUEST_TIMEOUT_SECONDS", "60"))

	enableFileLogging, _ := strconv.ParseBool(getEnv("ENABLE_FILE_LOGGING", "false"))

	env := strings.ToLower(getEnv("ENV", "development"))
	profilingDefault := env == "development" || env == "staging"
	profilingEnabled, _ := strconv.ParseBool(getEnv("PROFILING_ENABLED", strconv.FormatBool(profilingDefault)))
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", strconv.FormatBool(profilingDefault)))

	reloadIntSec, _ := strconv.Atoi(getEnv("CONFIG_RELOAD_INTERVAL_SECONDS", "2"))

	return &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		Port:         getEnv("PORT", "8080"),

		BatchSize:           batchSize,
		RecordDelay:         recordDelay,
		RescoreThreshold:    rescoreThreshold,
		ClaimTTL:            claimTTL,
		MaxTransientRetries: maxRetries,

		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,

		OpenAIModel:       openAIModel,
		OpenAITemperature: openAITemp,
		OpenAIMaxTokens:   openAIMaxTokens,
		OpenAITimeout:     time.Duration(openAIReqTimeoutSec) * time.Second,

		SourcesFile: getEnv("SOURCES_FILE", ""),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", ""),
		EnableFileLogging: enableFileLogging,

		Env:              env,
		ProfilingEnabled: profilingEnabled,
		ProfilingPort:    getEnv("PROFILING_PORT", "6060"),
		MetricsEnabled:   metricsEnabled,
		MetricsPath:      getEnv("METRICS_PATH", "/metrics"),

		HealthCheckPath: getEnv("HEALTH_CHECK_PATH", "/health"),

		ConfigReloadIntervalSeconds: reloadIntSec,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
