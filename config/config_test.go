package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, time.UTC, cfg.App.Location())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 100, cfg.HTTP.RateLimit)
	assert.Empty(t, cfg.HTTP.TrustedProxyPrefixes())
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, identifier.OverflowWiden, cfg.OverflowPolicy())
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":                    "staging",
		"APP_TIMEZONE":               "Europe/Berlin",
		"HTTP_TRUSTED_PROXIES":       "10.0.0.0/8, 192.168.1.4",
		"DATABASE_URL":               "postgres://u:p@db:5432/hostel",
		"DB_QUERY_TIMEOUT":           "2s",
		"HTTP_PORT":                  "9000",
		"HTTP_ALLOWED_ORIGINS":       "https://a.example,https://b.example",
		"IDENTIFIER_OVERFLOW_POLICY": "reject",
		"LOG_LEVEL":                  "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, "Europe/Berlin", cfg.App.Location().String())
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.4/32"),
	}, cfg.HTTP.TrustedProxyPrefixes())
	assert.Equal(t, 2*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, identifier.OverflowReject, cfg.OverflowPolicy())
}

func TestLoadFrom_ValidationErrors(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"APP_ENV":                    "production",
		"IDENTIFIER_OVERFLOW_POLICY": "wrap",
		"HTTP_PORT":                  "0",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL or Redis is required in production")
	assert.Contains(t, err.Error(), "IDENTIFIER_OVERFLOW_POLICY")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestLoadFrom_ProductionWithRedis(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":        "production",
		"REDIS_DISABLED": "false",
	})
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.App.Environment)
}

func TestLoadFrom_RejectsUnknownTimezone(t *testing.T) {
	_, err := LoadFrom(map[string]string{"APP_TIMEZONE": "Europe/Berln"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_TIMEZONE")
}

func TestLoadFrom_RejectsBadTrustedProxy(t *testing.T) {
	_, err := LoadFrom(map[string]string{"HTTP_TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"proxy.local"`)
}
