package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

// Load: 환경 변수 기반 설정을 로드합니다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig: 설정을 로드하고 검증합니다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate: 설정 유효성을 검사합니다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	for _, model := range []string{c.Gemini.DefaultModel, c.Gemini.ClarifyModel} {
		if model == "" {
			continue
		}
		if !isGemini3(model) {
			return fmt.Errorf("gemini 3 only: model=%s", model)
		}
	}
	if c.Clarify.MaxQuestions <= 0 {
		return fmt.Errorf("clarify max questions must be positive: %d", c.Clarify.MaxQuestions)
	}
	switch c.Clarify.CacheBackend {
	case CacheBackendMemory, CacheBackendValkey:
	default:
		return fmt.Errorf("unknown clarify cache backend: %s", c.Clarify.CacheBackend)
	}
	if c.Database.Enabled && !c.Database.IsSQLite() && c.Database.Driver != "postgres" {
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	return nil
}

// LogEnvStatus: 환경 설정 상태를 로그로 남깁니다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	logger.Debug(
		"env_status",
		"env_file", fileExists(".env"),
		"gemini_keys", len(cfg.Gemini.APIKeys),
		"primary_key", maskSecret(cfg.Gemini.PrimaryKey()),
		"model", cfg.Gemini.ModelForTask("clarify"),
		"timeout", cfg.Gemini.TimeoutSeconds,
		"clarify_mode", cfg.Clarify.NormalizedMode(),
		"max_questions", cfg.Clarify.MaxQuestions,
		"cache_backend", cfg.Clarify.CacheBackend,
		"db_enabled", cfg.Database.Enabled,
		"db_driver", cfg.Database.Driver,
	)

	mode := cfg.Clarify.NormalizedMode()
	if len(cfg.Gemini.APIKeys) == 0 && (mode == ModeLLM || mode == ModeHybrid) {
		logger.Warn("env_missing_google_api_key", "clarify_mode", mode)
	}
}

func buildConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			APIKeys:          parseAPIKeys(),
			DefaultModel:     getEnvString("GEMINI_MODEL", "gemini-3-flash-preview"),
			ClarifyModel:     getEnvString("GEMINI_CLARIFY_MODEL", ""),
			Temperature:      getEnvFloat("GEMINI_TEMPERATURE", 1.0),
			MaxOutputTokens:  getEnvInt("GEMINI_MAX_TOKENS", 4096),
			ThinkingLevel:    getEnvString("GEMINI_THINKING_LEVEL", "low"),
			MaxRetries:       max(1, getEnvInt("GEMINI_MAX_RETRIES", 3)),
			RetryInitialMs:   max(1, getEnvInt("GEMINI_RETRY_INITIAL_MS", 500)),
			TimeoutSeconds:   getEnvInt("GEMINI_TIMEOUT", 60),
			FailoverAttempts: max(1, getEnvInt("GEMINI_FAILOVER_ATTEMPTS", 2)),
		},
		Clarify: ClarifyConfig{
			Mode:            getEnvLower("CLARIFY_MODE", ModeHybrid),
			MaxQuestions:    max(1, getEnvInt("CLARIFY_MAX_QUESTIONS", 5)),
			MaxInputRunes:   max(1, getEnvInt("CLARIFY_MAX_INPUT_RUNES", 4000)),
			RulepacksDir:    getEnvString("CLARIFY_RULEPACKS_DIR", ""),
			DefaultLanguage: getEnvLower("CLARIFY_DEFAULT_LANGUAGE", "en"),
			CacheEnabled:    getEnvBool("CLARIFY_CACHE_ENABLED", true),
			CacheBackend:    getEnvLower("CLARIFY_CACHE_BACKEND", CacheBackendMemory),
			CacheURL:        getEnvString("CLARIFY_CACHE_URL", "redis://localhost:6379"),
			CacheMaxSize:    max(1, getEnvNonNegativeInt("CLARIFY_CACHE_SIZE", 2000)),
			CacheTTLSeconds: max(1, getEnvNonNegativeInt("CLARIFY_CACHE_TTL", 600)),
			CacheCompress:   getEnvBool("CLARIFY_CACHE_COMPRESS", true),
		},
		Guard: GuardConfig{
			Enabled:         getEnvBool("GUARD_ENABLED", true),
			Threshold:       getEnvFloat("GUARD_THRESHOLD", 0.85),
			RulepacksDir:    getEnvString("RULEPACKS_DIR", ""),
			CacheMaxSize:    getEnvInt("GUARD_CACHE_SIZE", 10000),
			CacheTTLSeconds: getEnvInt("GUARD_CACHE_TTL", 3600),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40530),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
			GzipEnabled:  getEnvBool("HTTP_GZIP_ENABLED", true),
		},
		GRPC: GRPCConfig{
			Host:    getEnvString("GRPC_HOST", "127.0.0.1"),
			Port:    getEnvInt("GRPC_PORT", 40531),
			Enabled: getEnvBool("GRPC_ENABLED", false),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKey:   getEnvString("HTTP_API_KEY", ""),
			Required: getEnvBool("HTTP_API_KEY_REQUIRED", false),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Database: DatabaseConfig{
			Enabled:                              getEnvBool("DB_ENABLED", false),
			Driver:                               getEnvLower("DB_DRIVER", "postgres"),
			Host:                                 getEnvString("DB_HOST", "localhost"),
			Port:                                 getEnvInt("DB_PORT", 5432),
			Name:                                 getEnvString("DB_NAME", "clarify"),
			User:                                 getEnvString("DB_USER", "clarify"),
			Password:                             getEnvString("DB_PASSWORD", ""),
			SQLitePath:                           getEnvString("DB_SQLITE_PATH", "clarify-usage.db"),
			MinPool:                              getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                              getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),
			UsageBatchEnabled:                    getEnvBool("DB_USAGE_BATCH_ENABLED", false),
			UsageBatchFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			UsageBatchFlushTimeoutSeconds:        max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_TIMEOUT_SECONDS", 5)),
			UsageBatchMaxPendingRequests:         max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_PENDING_REQUESTS", 50)),
			UsageBatchMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_BACKOFF_SECONDS", 60),
			UsageBatchErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_BATCH_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
		Telemetry: readTelemetryConfig(),
	}
}
