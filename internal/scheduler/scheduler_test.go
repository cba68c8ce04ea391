package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 */30 * * * *"))
	assert.NoError(t, ValidateSchedule("@every 1h"))
	assert.Error(t, ValidateSchedule("*/30 * * * *"), "five-field expressions lack seconds")
	assert.Error(t, ValidateSchedule("not a schedule"))
}

func TestRegisterJob(t *testing.T) {
	s := NewService(arbor.NewLogger())
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.RegisterJob("ingest", "0 */30 * * * *", noop))
	assert.Error(t, s.RegisterJob("ingest", "0 0 3 * * *", noop))
	assert.Error(t, s.RegisterJob("gaps", "bogus", noop))
	require.NoError(t, s.RegisterJob("disabled", "", noop))

	statuses := s.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "ingest", statuses[0].Name)
}

func TestStartRequiresJobs(t *testing.T) {
	s := NewService(arbor.NewLogger())
	assert.Error(t, s.Start())
}

func TestTriggerJobRecordsOutcome(t *testing.T) {
	s := NewService(arbor.NewLogger())
	calls := 0
	require.NoError(t, s.RegisterJob("gaps", "0 0 3 * * *", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("source down")
		}
		return nil
	}))

	require.NoError(t, s.TriggerJob("gaps"))
	status := s.Statuses()[0]
	assert.Equal(t, "source down", status.LastError)
	require.NotNil(t, status.LastRun)

	require.NoError(t, s.TriggerJob("gaps"))
	status = s.Statuses()[0]
	assert.Empty(t, status.LastError)
	assert.Equal(t, 2, status.Runs)

	assert.Error(t, s.TriggerJob("missing"))
}

func TestPanickingJobDoesNotStopScheduler(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.RegisterJob("boom", "0 0 3 * * *", func(ctx context.Context) error {
		panic("boom")
	}))

	assert.NotPanics(t, func() { _ = s.TriggerJob("boom") })
	assert.False(t, s.Statuses()[0].IsRunning)
}

func TestScheduledJobFires(t *testing.T) {
	s := NewService(arbor.NewLogger())
	var runs int32
	require.NoError(t, s.RegisterJob("tick", "* * * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NotNil(t, s.Statuses()[0].NextRun)
}

func TestStopCancelsHandlerContext(t *testing.T) {
	s := NewService(arbor.NewLogger())
	started := make(chan struct{})
	stopped := make(chan error, 1)
	require.NoError(t, s.RegisterJob("long", "0 0 3 * * *", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	}))
	require.NoError(t, s.Start())

	go func() { _ = s.TriggerJob("long") }()
	<-started
	s.Stop()

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("handler context was not cancelled")
	}
}
