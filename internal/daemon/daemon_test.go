package daemon

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

type countingRefresher struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context, schoolID string) (int, error) {
	r.calls.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return 0, r.err
	}
	return 3, nil
}

func TestDaemon_RunOnce(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	d := NewDaemon(&countingRefresher{}, "school-1", time.Hour, logger)
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	status := d.GetStatus()
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, 3, status.LastCount)
	assert.NoError(t, status.LastError)
	assert.False(t, status.LastRunTime.IsZero())
}

func TestNewDaemon_DefaultInterval(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	for _, interval := range []time.Duration{0, -time.Minute} {
		d := NewDaemon(&countingRefresher{}, "school-1", interval, logger)
		assert.Equal(t, DefaultInterval, d.GetStatus().Interval)
	}
	assert.Equal(t, time.Minute, NewDaemon(&countingRefresher{}, "school-1", time.Minute, logger).GetStatus().Interval)
}

func TestDaemon_StartWithZeroInterval(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r := &countingRefresher{}
	d := NewDaemon(r, "school-1", 0, logger)

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()
	assert.NoError(t, <-done)
}

func TestDaemon_RunOnceError(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	refreshErr := errors.New("api down")

	d := NewDaemon(&countingRefresher{err: refreshErr}, "school-1", time.Hour, logger)
	_, err := d.RunOnce(context.Background())
	assert.ErrorIs(t, err, refreshErr)
	assert.ErrorIs(t, d.GetStatus().LastError, refreshErr)
}

func TestDaemon_RejectsConcurrentRefresh(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r := &countingRefresher{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDaemon(r, "school-1", time.Hour, logger)

	done := make(chan error, 1)
	go func() {
		_, err := d.RunOnce(context.Background())
		done <- err
	}()
	<-r.started

	_, err := d.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(r.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestDaemon_StartTicksUntilStopped(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r := &countingRefresher{}
	d := NewDaemon(r, "school-1", 5*time.Millisecond, logger)

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestNewScheduledDaemon(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	_, err := NewScheduledDaemon(&countingRefresher{}, "school-1", "every morning", nil, logger)
	assert.Error(t, err)

	d, err := NewScheduledDaemon(&countingRefresher{}, "school-1", "30 5 * * 1-6", nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "30 5 * * 1-6", d.GetStatus().Schedule)
	assert.Zero(t, d.GetStatus().Interval)
	assert.Equal(t, time.Local, d.location)
}

func TestDaemon_ScheduledModeRunsImmediately(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r := &countingRefresher{}

	d, err := NewScheduledDaemon(r, "school-1", "@daily", time.UTC, logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
