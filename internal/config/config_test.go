package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadConfig()
	assert.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "./conf/providers", cfg.Paths.Providers)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "test")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("DATABASE_DSN", "/tmp/test.db")

	cfg, err := LoadConfig()
	assert.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "test", cfg.Server.Env)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
}
