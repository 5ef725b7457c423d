package config

import (
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, values map[string]any) *Config {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(values, "."), nil))
	cfg, err := fromKoanf(k)
	require.NoError(t, err)
	return cfg
}

func TestFromKoanf_Defaults(t *testing.T) {
	cfg := load(t, map[string]any{})

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(25), cfg.DB.MaxConns)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Equal(t, "UTC", cfg.FreeTrial.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.FreeTrial.PolicyCacheTTL)
	assert.Equal(t, "lineage", cfg.Retake.CountSource)
	assert.Equal(t, 60, cfg.RateLimit.WindowSec)
	assert.Empty(t, cfg.CORS.AllowedOrigins)
}

func TestFromKoanf_Overrides(t *testing.T) {
	cfg := load(t, map[string]any{
		"server.port":                "9090",
		"freetrial.timezone":         "Asia/Kolkata",
		"freetrial.policy.cache.ttl": "30s",
		"retake.count.source":        "attempt",
		"cors.allowed.origins":       "https://app.example.com, https://admin.example.com",
		"db.auto.migrate":            "true",
	})

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "Asia/Kolkata", cfg.FreeTrial.Location().String())
	assert.Equal(t, 30*time.Second, cfg.FreeTrial.PolicyCacheTTL)
	assert.Equal(t, "attempt", cfg.Retake.CountSource)
	assert.True(t, cfg.DB.AutoMigrate)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestFromKoanf_BadDuration(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]any{"freetrial.policy.cache.ttl": "soon"}, "."), nil))
	_, err := fromKoanf(k)
	assert.Error(t, err)
}

func TestFreeTrialConfig_LocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, FreeTrialConfig{Timezone: "Nowhere/Special"}.Location())
}
