package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:8081", "-grpc", ":6000", "-d", "db", "-s", "secret", "-t", "30", "-r", "60",
				"-u", "user", "-p", "password", "-b", "bucket", "-g", "eu-west-1", "-e", "http://endpoint",
				"-pricing", "catalog.yaml", "-log-backend", "zerolog", "-log-level", "debug",
			},
			expected: &Config{
				HTTPAddr:                     "127.0.0.1:8081",
				GRPCAddr:                     ":6000",
				DatabaseDSN:                  "db",
				SecretKey:                    "secret",
				AccessTokenValidityDuration:  30 * time.Minute,
				RefreshTokenValidityDuration: time.Hour,
				S3RootUser:                   "user",
				S3RootPassword:               "password",
				S3Bucket:                     "bucket",
				S3Region:                     "eu-west-1",
				S3BaseEndpoint:               "http://endpoint",
				PricingCatalogFile:           "catalog.yaml",
				LogBackend:                   "zerolog",
				LogLevel:                     "debug",
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"cmd", "-c", "conf.json", "-env-file", ".env", "-a", ":1"},
			expected: &Config{
				HTTPAddr: ":1",
			},
		},
		{
			name:        "bad int panics",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
