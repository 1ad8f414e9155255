package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/taskmaster/internal/push"
	"github.com/kidandcat/taskmaster/internal/reminder"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TASKMASTER_DATABASE_DATA_DIR", t.TempDir())
	t.Setenv("TASKMASTER_LOG_LEVEL", "error")
}

func TestVAPIDKeysCommand(t *testing.T) {
	out, err := execute(t, "vapid-keys")
	require.NoError(t, err)
	assert.Contains(t, out, "TASKMASTER_PUSH_VAPID_PUBLIC_KEY=")
	assert.Contains(t, out, "TASKMASTER_PUSH_VAPID_PRIVATE_KEY=")
}

func TestMigrateCommand(t *testing.T) {
	testEnv(t)
	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")
}

func TestCheckDueRequiresKeys(t *testing.T) {
	testEnv(t)
	_, err := execute(t, "check-due")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vapid")
}

func TestCheckDueCommand(t *testing.T) {
	testEnv(t)
	pub, priv, err := push.GenerateKeys()
	require.NoError(t, err)
	t.Setenv("TASKMASTER_PUSH_VAPID_PUBLIC_KEY", pub)
	t.Setenv("TASKMASTER_PUSH_VAPID_PRIVATE_KEY", priv)

	out, err := execute(t, "check-due")
	require.NoError(t, err)

	start := strings.Index(out, "{")
	require.GreaterOrEqual(t, start, 0, out)
	var summary reminder.Summary
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &summary))
	assert.Equal(t, 0, summary.NotificationsSent)
	assert.Equal(t, "No subscriptions to check", summary.Message)
}

func TestBootstrapWiresPush(t *testing.T) {
	testEnv(t)
	pub, priv, err := push.GenerateKeys()
	require.NoError(t, err)
	t.Setenv("TASKMASTER_PUSH_VAPID_PUBLIC_KEY", pub)
	t.Setenv("TASKMASTER_PUSH_VAPID_PRIVATE_KEY", priv)

	prev := configPath
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = prev })

	a, err := bootstrap(context.Background())
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.job)
	assert.Equal(t, pub, a.publicKey)
}

func TestBootstrapWithoutPush(t *testing.T) {
	testEnv(t)
	prev := configPath
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = prev })

	a, err := bootstrap(context.Background())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.job)
	assert.Empty(t, a.publicKey)
}
