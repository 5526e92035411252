package fileschedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/core"
)

func newStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	store.clock = func() time.Time { return now }
	return store
}

func nightlySchedule(id string) *core.RunSchedule {
	return &core.RunSchedule{
		ID:              id,
		SuiteName:       "checkout",
		EnvironmentName: "staging",
		CronExpr:        "0 2 * * *",
		Active:          true,
		Description:     "nightly checkout smoke",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := newStore(t, now)
	ctx := context.Background()

	sched := nightlySchedule("sched-1")
	require.NoError(t, store.Create(ctx, sched))
	assert.True(t, sched.CreatedAt.Equal(now))
	assert.True(t, sched.UpdatedAt.Equal(now))

	got, err := store.Get(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.SuiteName)
	assert.Equal(t, "0 2 * * *", got.CronExpr)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(now))

	require.ErrorIs(t, store.Create(ctx, nightlySchedule("sched-1")), core.ErrScheduleExists)

	_, err = store.Get(ctx, "ghost")
	require.ErrorIs(t, err, core.ErrScheduleNotFound)
}

func TestStore_CreateValidation(t *testing.T) {
	t.Parallel()

	store := newStore(t, time.Now())
	ctx := context.Background()

	sched := nightlySchedule("sched-1")
	sched.CronExpr = ""
	require.ErrorIs(t, store.Create(ctx, sched), core.ErrScheduleCronRequired)

	require.Error(t, store.Create(ctx, nightlySchedule("")))
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := newStore(t, created)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, nightlySchedule("sched-1")))

	// A handler-built update carries no timestamps; the stored creation
	// time survives and the modification time moves.
	later := created.Add(time.Hour)
	store.clock = func() time.Time { return later }
	update := nightlySchedule("sched-1")
	update.Active = false
	update.LastRunAt = created.Add(30 * time.Minute)
	require.NoError(t, store.Update(ctx, update))

	got, err := store.Get(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.LastRunAt.Equal(created.Add(30*time.Minute)))

	require.ErrorIs(t, store.Update(ctx, nightlySchedule("ghost")), core.ErrScheduleNotFound)
}

func TestStore_SoftDelete(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := newStore(t, now)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, nightlySchedule("sched-1")))
	require.NoError(t, store.Delete(ctx, "sched-1"))

	_, err := store.Get(ctx, "sched-1")
	require.ErrorIs(t, err, core.ErrScheduleNotFound)

	schedules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, schedules)

	// The document survives on disk so a fired trigger can detect the
	// removal.
	data, err := os.ReadFile(store.filePath("sched-1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "deleted: true")

	require.ErrorIs(t, store.Delete(ctx, "sched-1"), core.ErrScheduleNotFound)
	require.ErrorIs(t, store.Update(ctx, nightlySchedule("sched-1")), core.ErrScheduleNotFound)
	require.ErrorIs(t, store.Delete(ctx, "ghost"), core.ErrScheduleNotFound)
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := newStore(t, base)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, nightlySchedule("sched-b")))
	store.clock = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, store.Create(ctx, nightlySchedule("sched-a")))
	store.clock = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, store.Create(ctx, nightlySchedule("sched-c")))
	require.NoError(t, store.Delete(ctx, "sched-a"))

	broken := filepath.Join(store.baseDir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("{cronExpr: ["), 0o600))

	schedules, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "sched-b", schedules[0].ID)
	assert.Equal(t, "sched-c", schedules[1].ID)
}
