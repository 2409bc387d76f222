package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/neoma/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string             HTTP bind address (e.g., ":8080")
//	-grpc string          gRPC health bind address
//	-d string             PostgreSQL DSN
//	-s string             JWT HMAC secret key
//	-t int                access token validity, minutes
//	-r int                refresh token validity, minutes
//	-u string             S3 root user
//	-p string             S3 root password
//	-b string             S3 bucket name
//	-g string             S3 region
//	-e string             S3 base endpoint
//	-pricing string       YAML pricing catalog file
//	-log-backend string   slog or zerolog
//	-log-level string     debug, info, warn, error
//
// Only the flags above are picked out of os.Args (see flagx.FilterArgs), so
// -c and -env-file handled by other layers do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-grpc", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e",
		"-pricing", "-log-backend", "-log-level",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCAddr, "grpc", config.GRPCAddr, "address and port to run the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.PricingCatalogFile, "pricing", config.PricingCatalogFile, "pricing catalog YAML file")
	fs.StringVar(&config.LogBackend, "log-backend", config.LogBackend, "log backend (slog|zerolog)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
