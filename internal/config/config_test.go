package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults when file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := "server:\n  addr: \":9000\"\ncron:\n  secret: s3cret\n  interval: 1m\nreminder:\n  concurrency: 2\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, "s3cret", cfg.Cron.Secret)
		assert.Equal(t, time.Minute, cfg.Cron.Interval)
		assert.Equal(t, 2, cfg.Reminder.Concurrency)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cron:\n  secret: from-file\n"), 0600))
		t.Setenv("TASKMASTER_CRON_SECRET", "from-env")
		t.Setenv("TASKMASTER_PUSH_VAPID_PRIVATE_KEY", "priv")
		t.Setenv("TASKMASTER_REDIS_READ_TIMEOUT", "50ms")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Cron.Secret)
		assert.Equal(t, "priv", cfg.Push.VAPIDPrivateKey)
		assert.Equal(t, 50*time.Millisecond, cfg.Redis.ReadTimeout)
		assert.Equal(t, 200*time.Millisecond, cfg.Redis.DialTimeout)
	})

	t.Run("invalid driver is rejected", func(t *testing.T) {
		t.Setenv("TASKMASTER_DATABASE_DRIVER", "mysql")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "push.vapid_public_key", envKey("TASKMASTER_PUSH_VAPID_PUBLIC_KEY"))
	assert.Equal(t, "ratelimit.rps", envKey("TASKMASTER_RATELIMIT_RPS"))
	assert.Equal(t, "debug", envKey("TASKMASTER_DEBUG"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://localhost/taskmaster"
	assert.NoError(t, cfg.Validate())

	cfg.Reminder.Concurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Cron.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Cron.Timezone = "Mars/Olympus"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func TestPushEnabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.PushEnabled())
	cfg.Push.VAPIDPublicKey = "pub"
	cfg.Push.VAPIDPrivateKey = "priv"
	assert.True(t, cfg.PushEnabled())
}

func TestResolveURL(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "https://tasks.example.com/app/"

	assert.Equal(t, "https://tasks.example.com/", cfg.ResolveURL("/"))
	assert.Equal(t, "https://tasks.example.com/icons/icon-192x192.png", cfg.ResolveURL("/icons/icon-192x192.png"))
	assert.Equal(t, "https://tasks.example.com/app/today", cfg.ResolveURL("today"))
	assert.Equal(t, "https://cdn.example.com/i.png", cfg.ResolveURL("https://cdn.example.com/i.png"))
	assert.Equal(t, "", cfg.ResolveURL(""))

	cfg.Server.BaseURL = ""
	assert.Equal(t, "/", cfg.ResolveURL("/"))
}

func TestValidateBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "tasks.example.com"
	require.Error(t, cfg.Validate())

	cfg.Server.BaseURL = ""
	assert.NoError(t, cfg.Validate())
}
