package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/neoma/internal/flagx"
	"github.com/dmitrijs2005/neoma/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// both "15m" style strings and integer nanoseconds. Keys left out of the
// file keep whatever value the earlier layers produced.
type JsonConfig struct {
	HTTPAddr                     string          `json:"http_addr"`
	GRPCAddr                     string          `json:"grpc_addr"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	SignupEncryptionKey          string          `json:"signup_encryption_key"`
	PendingSignupTTL             *timex.Duration `json:"pending_signup_ttl"`
	StripeSecretKey              string          `json:"stripe_secret_key"`
	StripeWebhookSecret          string          `json:"stripe_webhook_secret"`
	PublicBaseURL                string          `json:"public_base_url"`
	S3RootUser                   string          `json:"s3_root_user"`
	S3RootPassword               string          `json:"s3_root_password"`
	S3Bucket                     string          `json:"s3_bucket"`
	S3Region                     string          `json:"s3_region"`
	S3BaseEndpoint               string          `json:"s3_base_endpoint"`
	PresignValidity              *timex.Duration `json:"presign_validity"`
	GeneratorURL                 string          `json:"generator_url"`
	GeneratorAPIKey              string          `json:"generator_api_key"`
	GeneratorTimeout             *timex.Duration `json:"generator_timeout"`
	PricingCatalogFile           string          `json:"pricing_catalog_file"`
	LogBackend                   string          `json:"log_backend"`
	LogLevel                     string          `json:"log_level"`
	RateLimitPerSecond           *float64        `json:"rate_limit_rps"`
	RateLimitBurst               *int            `json:"rate_limit_burst"`
	CORSOrigins                  []string        `json:"cors_origins"`
	TrustedProxies               []string        `json:"trusted_proxies"`
}

// parseJson loads the file named by -c/-config on top of config. Nothing is
// loaded when the flag is absent. An unreadable file or invalid JSON panics,
// matching how flag errors are handled.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.SignupEncryptionKey, c.SignupEncryptionKey)
	setDuration(&config.PendingSignupTTL, c.PendingSignupTTL)
	setString(&config.StripeSecretKey, c.StripeSecretKey)
	setString(&config.StripeWebhookSecret, c.StripeWebhookSecret)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.PresignValidity, c.PresignValidity)
	setString(&config.GeneratorURL, c.GeneratorURL)
	setString(&config.GeneratorAPIKey, c.GeneratorAPIKey)
	setDuration(&config.GeneratorTimeout, c.GeneratorTimeout)
	setString(&config.PricingCatalogFile, c.PricingCatalogFile)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	if c.RateLimitPerSecond != nil {
		config.RateLimitPerSecond = *c.RateLimitPerSecond
	}
	if c.RateLimitBurst != nil {
		config.RateLimitBurst = *c.RateLimitBurst
	}
	if c.CORSOrigins != nil {
		config.CORSOrigins = c.CORSOrigins
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
