package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/taskmaster/internal/config"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(config.DatabaseConfig{Driver: DriverSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func newTestUser(t *testing.T, d *DB, deviceID string) *User {
	t.Helper()
	u, err := d.CreateUser(context.Background(), deviceID)
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := newTestDB(t)
	assert.NoError(t, d.Migrate(context.Background()))
	assert.NoError(t, d.Ping(context.Background()))
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)",
		pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	t.Run("create and look up", func(t *testing.T) {
		u := newTestUser(t, d, "device-a")
		got, err := d.GetUserByDevice(ctx, "device-a")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		got, err = d.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "device-a", got.DeviceID)
	})

	t.Run("unknown device is not found", func(t *testing.T) {
		_, err := d.GetUserByDevice(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty device id is rejected", func(t *testing.T) {
		_, err := d.CreateUser(ctx, "")
		assert.True(t, IsValidation(err))
	})

	t.Run("duplicate device id is a storage error", func(t *testing.T) {
		newTestUser(t, d, "device-dup")
		_, err := d.CreateUser(ctx, "device-dup")
		var se *StorageError
		assert.ErrorAs(t, err, &se)
	})
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newTestUser(t, d, "device-cascade")

	_, err := d.CreateTask(ctx, u.ID, "buy milk", nil, nil)
	require.NoError(t, err)
	_, err = d.SaveSubscription(ctx, u.ID, "https://push.example/1", "p256", "auth")
	require.NoError(t, err)

	require.NoError(t, d.DeleteUser(ctx, u.ID))

	tasks, err := d.ListTasksByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	subs, err := d.ListSubscriptionsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	alice := newTestUser(t, d, "alice")
	bob := newTestUser(t, d, "bob")

	t.Run("save twice keeps one row with latest keys", func(t *testing.T) {
		first, err := d.SaveSubscription(ctx, alice.ID, "https://push.example/a", "key1", "auth1")
		require.NoError(t, err)
		second, err := d.SaveSubscription(ctx, alice.ID, "https://push.example/a", "key2", "auth2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		subs, err := d.ListSubscriptionsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "key2", subs[0].P256dh)
		assert.Equal(t, "auth2", subs[0].Auth)
	})

	t.Run("same endpoint for another user is a separate row", func(t *testing.T) {
		_, err := d.SaveSubscription(ctx, bob.ID, "https://push.example/a", "kb", "ab")
		require.NoError(t, err)

		all, err := d.ListActiveSubscriptions(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("missing keys are rejected", func(t *testing.T) {
		_, err := d.SaveSubscription(ctx, alice.ID, "https://push.example/b", "", "auth")
		assert.True(t, IsValidation(err))
		_, err = d.SaveSubscription(ctx, alice.ID, "", "k", "a")
		assert.True(t, IsValidation(err))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, d.RemoveSubscription(ctx, alice.ID, "https://push.example/a"))
		require.NoError(t, d.RemoveSubscription(ctx, alice.ID, "https://push.example/a"))

		subs, err := d.ListSubscriptionsByUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, subs)

		subs, err = d.ListSubscriptionsByUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newTestUser(t, d, "device")

	t.Run("requires text", func(t *testing.T) {
		_, err := d.CreateTask(ctx, u.ID, "   ", nil, nil)
		assert.True(t, IsValidation(err))
	})

	t.Run("rejects malformed reminder time", func(t *testing.T) {
		for _, rt := range []string{"9:00", "24:00", "12:60", "noon", ""} {
			_, err := d.CreateTask(ctx, u.ID, "x", nil, strPtr(rt))
			assert.True(t, IsValidation(err), rt)
		}
	})

	t.Run("lists newest first", func(t *testing.T) {
		first, err := d.CreateTask(ctx, u.ID, "first", nil, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := d.CreateTask(ctx, u.ID, "second", nil, nil)
		require.NoError(t, err)

		tasks, err := d.ListTasksByUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, second.ID, tasks[0].ID)
		assert.Equal(t, first.ID, tasks[1].ID)
		assert.False(t, tasks[0].Completed)
	})
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newTestUser(t, d, "device")
	due := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	task, err := d.CreateTask(ctx, u.ID, "call mom", &due, strPtr("09:00"))
	require.NoError(t, err)

	t.Run("completed only leaves other fields", func(t *testing.T) {
		done := true
		got, err := d.UpdateTask(ctx, task.ID, TaskUpdate{Completed: &done})
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, "call mom", got.Text)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))
		require.NotNil(t, got.ReminderTime)
		assert.Equal(t, "09:00", *got.ReminderTime)
	})

	t.Run("explicit clear empties due date", func(t *testing.T) {
		got, err := d.UpdateTask(ctx, task.ID, TaskUpdate{DueDate: Clear[time.Time]()})
		require.NoError(t, err)
		assert.Nil(t, got.DueDate)
		require.NotNil(t, got.ReminderTime)
		assert.Equal(t, "09:00", *got.ReminderTime)
	})

	t.Run("sets text and reminder time", func(t *testing.T) {
		text := "call dad"
		got, err := d.UpdateTask(ctx, task.ID, TaskUpdate{
			Text:         &text,
			ReminderTime: SetTo("18:30"),
		})
		require.NoError(t, err)
		assert.Equal(t, "call dad", got.Text)
		assert.Equal(t, "18:30", *got.ReminderTime)
		assert.True(t, got.UpdatedAt.After(task.UpdatedAt) || got.UpdatedAt.Equal(task.UpdatedAt))
	})

	t.Run("rejects empty text", func(t *testing.T) {
		empty := ""
		_, err := d.UpdateTask(ctx, task.ID, TaskUpdate{Text: &empty})
		assert.True(t, IsValidation(err))
	})

	t.Run("missing task is not found", func(t *testing.T) {
		done := true
		_, err := d.UpdateTask(ctx, "missing", TaskUpdate{Completed: &done})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newTestUser(t, d, "device")
	task, err := d.CreateTask(ctx, u.ID, "gone soon", nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.DeleteTask(ctx, task.ID))
	_, err = d.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, d.DeleteTask(ctx, task.ID))
}

func TestDueTasks(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newTestUser(t, d, "device")
	now := time.Now()
	tomorrow := now.Add(24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)

	due, err := d.CreateTask(ctx, u.ID, "due", &tomorrow, strPtr("09:00"))
	require.NoError(t, err)
	_, err = d.CreateTask(ctx, u.ID, "past due", &yesterday, strPtr("09:00"))
	require.NoError(t, err)
	_, err = d.CreateTask(ctx, u.ID, "no date", nil, strPtr("09:00"))
	require.NoError(t, err)
	_, err = d.CreateTask(ctx, u.ID, "other time", &tomorrow, strPtr("10:00"))
	require.NoError(t, err)

	tasks, err := d.DueTasks(ctx, u.ID, "09:00", now)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, due.ID, tasks[0].ID)

	t.Run("one minute off does not match", func(t *testing.T) {
		tasks, err := d.DueTasks(ctx, u.ID, "09:01", now)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("already notified this minute is skipped", func(t *testing.T) {
		require.NoError(t, d.MarkNotified(ctx, []string{due.ID}, now))
		tasks, err := d.DueTasks(ctx, u.ID, "09:00", now)
		require.NoError(t, err)
		assert.Empty(t, tasks)

		tasks, err = d.DueTasks(ctx, u.ID, "09:00", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})

	t.Run("completed task no longer due", func(t *testing.T) {
		done := true
		_, err := d.UpdateTask(ctx, due.ID, TaskUpdate{Completed: &done})
		require.NoError(t, err)
		tasks, err := d.DueTasks(ctx, u.ID, "09:00", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestValidReminderTime(t *testing.T) {
	for _, ok := range []string{"00:00", "09:30", "23:59"} {
		assert.True(t, ValidReminderTime(ok), ok)
	}
	for _, bad := range []string{"", "9:30", "24:00", "23:60", "09:30:00", "ab:cd"} {
		assert.False(t, ValidReminderTime(bad), bad)
	}
}

func TestClock(t *testing.T) {
	at := time.Date(2026, 3, 4, 7, 5, 59, 0, time.UTC)
	assert.Equal(t, "07:05", Clock(at))
}
