package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/neoma/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "NEOMA_"

// parseEnv overlays NEOMA_* environment variables. A dotenv file named by
// -env-file (or ./.env when present) is loaded first; variables already set
// in the process environment take precedence over the file.
func parseEnv(config *Config) {
	if file := flagx.EnvFileFlags(); file != "" {
		if err := godotenv.Load(file); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("GRPC_ADDR", &config.GRPCAddr)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("SECRET_KEY", &config.SecretKey)
	envDuration("ACCESS_TOKEN_VALIDITY", &config.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_VALIDITY", &config.RefreshTokenValidityDuration)
	envString("SIGNUP_ENCRYPTION_KEY", &config.SignupEncryptionKey)
	envDuration("PENDING_SIGNUP_TTL", &config.PendingSignupTTL)
	envString("STRIPE_SECRET_KEY", &config.StripeSecretKey)
	envString("STRIPE_WEBHOOK_SECRET", &config.StripeWebhookSecret)
	envString("PUBLIC_BASE_URL", &config.PublicBaseURL)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envDuration("PRESIGN_VALIDITY", &config.PresignValidity)
	envString("GENERATOR_URL", &config.GeneratorURL)
	envString("GENERATOR_API_KEY", &config.GeneratorAPIKey)
	envDuration("GENERATOR_TIMEOUT", &config.GeneratorTimeout)
	envString("PRICING_CATALOG_FILE", &config.PricingCatalogFile)
	envString("LOG_BACKEND", &config.LogBackend)
	envString("LOG_LEVEL", &config.LogLevel)

	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimitPerSecond = f
		}
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.RateLimitBurst = n
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		config.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("TRUSTED_PROXIES"); ok {
		config.TrustedProxies = splitList(v)
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
