package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "secret")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5001", cfg.HTTPAddress)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "chatty.db", cfg.DatabasePath)
	assert.Equal(t, "jwt", cfg.CookieName)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(5<<20), cfg.UploadsMaxSize)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 64, cfg.SendBuffer)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHATTY_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("CHATTY_DATABASE_DRIVER", "postgres")
	t.Setenv("CHATTY_DATABASE_DSN", "postgres://localhost/chat")
	t.Setenv("CHATTY_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CHATTY_WS_PING_INTERVAL", "5s")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.SigningSecret)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(NewViper())
	assert.ErrorContains(t, err, "auth.signing_secret")

	v := NewViper()
	v.Set("auth.signing_secret", "secret")
	v.Set("database.driver", "postgres")
	_, err = Load(v)
	assert.ErrorContains(t, err, "database.dsn")

	v.Set("database.driver", "mysql")
	_, err = Load(v)
	assert.ErrorContains(t, err, "unsupported")
}
