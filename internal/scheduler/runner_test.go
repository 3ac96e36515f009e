package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRunner(t *testing.T) (*Runner, *MemoryRecorder) {
	t.Helper()
	recorder := NewMemoryRecorder()
	return New(context.Background(), recorder, zap.NewNop()), recorder
}

func TestRunner_Add(t *testing.T) {
	r, _ := newRunner(t)
	noop := func(context.Context) (string, error) { return "", nil }

	require.NoError(t, r.Add(Job{Name: "dca-daily", Schedule: "0 30 0 * * *", Run: noop}))

	t.Run("duplicate-name", func(t *testing.T) {
		err := r.Add(Job{Name: "dca-daily", Schedule: "0 30 0 * * *", Run: noop})
		assert.Error(t, err)
	})

	t.Run("five-field-schedule-rejected", func(t *testing.T) {
		err := r.Add(Job{Name: "other", Schedule: "30 0 * * *", Run: noop})
		assert.Error(t, err)
	})

	t.Run("missing-run", func(t *testing.T) {
		err := r.Add(Job{Name: "empty", Schedule: "@daily"})
		assert.Error(t, err)
	})
}

func TestRunner_RunNowRecordsStatus(t *testing.T) {
	r, recorder := newRunner(t)
	calls := 0
	require.NoError(t, r.Add(Job{
		Name:     "dca-daily",
		Schedule: "0 30 0 * * *",
		Run: func(context.Context) (string, error) {
			calls++
			if calls == 2 {
				return "", errors.New("store unavailable")
			}
			return "trades_placed=3", nil
		},
	}))

	run, err := r.RunNow(context.Background(), "dca-daily")
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, "trades_placed=3", run.Result)

	status, ok := recorder.Last("dca-daily")
	require.True(t, ok)
	assert.Equal(t, 1, status.Runs)
	assert.Empty(t, status.LastError)

	_, err = r.RunNow(context.Background(), "dca-daily")
	require.Error(t, err)

	status, _ = recorder.Last("dca-daily")
	assert.Equal(t, 2, status.Runs)
	assert.Equal(t, 1, status.Failures)
	assert.Equal(t, "store unavailable", status.LastError)
	assert.Equal(t, []string{"dca-daily"}, recorder.Jobs())
}

func TestRunner_RunNowUnknownJob(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunner_PanicBecomesError(t *testing.T) {
	r, recorder := newRunner(t)
	require.NoError(t, r.Add(Job{
		Name:     "boom",
		Schedule: "@hourly",
		Run:      func(context.Context) (string, error) { panic("nil map") },
	}))

	_, err := r.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	status, _ := recorder.Last("boom")
	assert.Equal(t, 1, status.Failures)
}

func TestRunner_ScheduledRunAndStatus(t *testing.T) {
	r, _ := newRunner(t)
	var runs atomic.Int32
	require.NoError(t, r.Add(Job{
		Name:     "tick",
		Schedule: "* * * * * *",
		Run: func(context.Context) (string, error) {
			runs.Add(1)
			return "ok", nil
		},
	}))

	r.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	statuses := r.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "tick", statuses[0].Name)
	assert.Equal(t, "* * * * * *", statuses[0].Schedule)
	require.NotNil(t, statuses[0].NextRun)
	assert.Equal(t, time.UTC, statuses[0].NextRun.Location())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}
