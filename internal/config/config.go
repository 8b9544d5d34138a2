package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string
	RedisURL    string

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	JWTAccessTTL    time.Duration

	// AccountTokenSecret keys the HMAC proofs carried in verification and
	// password-reset links. Kept independent from the JWT secret so rotating
	// one does not invalidate the other.
	AccountTokenSecret string
	VerifyTokenTTL     time.Duration
	ResetTokenTTL      time.Duration

	WalletBonusAmount float64

	EffectStream        string
	EffectConsumerGroup string
	EffectMaxAttempts   int

	CORSAllowedOrigins  []string
	AuthRateLimitPerMin int
	APIRateLimitPerMin  int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:         env,
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTIssuer:       getEnv("JWT_ISSUER", "storefront-backend"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "storefront-backend-api"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),

		AccountTokenSecret: os.Getenv("ACCOUNT_TOKEN_SECRET"),

		WalletBonusAmount: getEnvFloat("WALLET_VERIFY_BONUS", 0.99),

		EffectStream:        getEnv("EFFECT_STREAM", "storefront:effects"),
		EffectConsumerGroup: getEnv("EFFECT_CONSUMER_GROUP", "effect-workers"),
		EffectMaxAttempts:   getEnvInt("EFFECT_MAX_ATTEMPTS", 5),

		CORSAllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AuthRateLimitPerMin: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:  getEnvInt("API_RATE_LIMIT_PER_MIN", 120),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "storefront-backend"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	accessTTL, err := time.ParseDuration(getEnv("JWT_ACCESS_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWTAccessTTL = accessTTL

	verifyTTL, err := time.ParseDuration(getEnv("VERIFY_TOKEN_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("parse VERIFY_TOKEN_TTL: %w", err)
	}
	cfg.VerifyTokenTTL = verifyTTL

	resetTTL, err := time.ParseDuration(getEnv("RESET_TOKEN_TTL", "2h"))
	if err != nil {
		return nil, fmt.Errorf("parse RESET_TOKEN_TTL: %w", err)
	}
	cfg.ResetTokenTTL = resetTTL

	metricsInterval, err := time.ParseDuration(getEnv("OTEL_METRICS_EXPORT_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse OTEL_METRICS_EXPORT_INTERVAL: %w", err)
	}
	cfg.OTELMetricsExportInterval = metricsInterval

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "20s"))
	if err != nil {
		return nil, fmt.Errorf("parse SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.AccountTokenSecret) < 32 {
		errs = append(errs, "ACCOUNT_TOKEN_SECRET must be at least 32 chars")
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.AccountTokenSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and ACCOUNT_TOKEN_SECRET must differ")
	}
	if c.WalletBonusAmount < 0 {
		errs = append(errs, "WALLET_VERIFY_BONUS must not be negative")
	}
	if c.VerifyTokenTTL <= 0 {
		errs = append(errs, "VERIFY_TOKEN_TTL must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		errs = append(errs, "RESET_TOKEN_TTL must be positive")
	}
	if c.EffectStream == "" {
		errs = append(errs, "EFFECT_STREAM is required")
	}
	if c.EffectMaxAttempts < 1 {
		errs = append(errs, "EFFECT_MAX_ATTEMPTS must be at least 1")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
