package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("mode: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Listen)
	assert.Equal(t, DriverMySQL, cfg.DB.Driver)
	assert.Equal(t, 3306, cfg.DB.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Lending.LoanPeriod())
	assert.Equal(t, 1, cfg.Lending.Renewals())

	fine, err := cfg.Lending.FinePerDayAmount()
	require.NoError(t, err)
	assert.True(t, fine.Equal(decimal.RequireFromString("0.5")))
}

func TestParseExplicitValues(t *testing.T) {
	src := `
mode: release
listen: ":9000"
database:
  driver: sqlite3
  path: /tmp/x.db
auth:
  jwt_secret: s3cret
  token_ttl: 2h
lending:
  loan_period_days: 7
  fine_per_day: "1.00"
  max_renewals: 0
`
	cfg, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, ModeRelease, cfg.Mode)
	assert.Equal(t, "/tmp/x.db", cfg.DB.Path)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Lending.LoanPeriod())
	assert.Equal(t, 0, cfg.Lending.Renewals())
}

func TestParseRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"unknown mode", "mode: staging\n"},
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"bad fine", "lending:\n  fine_per_day: abc\n"},
		{"negative fine", "lending:\n  fine_per_day: \"-1\"\n"},
		{"release without secret", "mode: release\n"},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(jwtSecretEnv, "")
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestJWTSecretFromEnv(t *testing.T) {
	t.Setenv(jwtSecretEnv, "from-env")
	cfg, err := Parse([]byte("mode: release\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoadExampleFile(t *testing.T) {
	path := filepath.Join("..", "..", "..", "config", "config.example.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("example config not present")
	}
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
}
