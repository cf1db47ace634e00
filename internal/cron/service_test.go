package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) (*Service, *prometheus.Registry) {
	t.Helper()
	registry := NewRegistry()
	for _, job := range jobs {
		require.NoError(t, registry.Register(job))
	}
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(reg),
	})
	require.NoError(t, err)
	return svc, reg
}

func TestCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &stubJob{name: "outbox-retention", affected: 4}
	failing := &stubJob{name: "expire-pending-orders", err: errors.New("db down")}
	lock := &fakeLock{}
	svc, reg := newTestService(t, lock, failing, ok)

	err := svc.cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire-pending-orders")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	affected, err := testutil.GatherAndCount(reg, "maintenance_job_affected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	runs, err := testutil.GatherAndCount(reg, "maintenance_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestCycleSkipsWhenLockHeld(t *testing.T) {
	job := &stubJob{name: "outbox-retention"}
	lock := &fakeLock{held: true}
	svc, _ := newTestService(t, lock, job)

	require.NoError(t, svc.cycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestCycleReportsLockErrors(t *testing.T) {
	job := &stubJob{name: "outbox-retention"}
	svc, _ := newTestService(t, &fakeLock{err: errors.New("redis down")}, job)

	require.Error(t, svc.cycle(context.Background()))
	assert.Zero(t, job.runs)
}

type signalJob struct {
	ran chan struct{}
}

func (s *signalJob) Name() string { return "signal" }

func (s *signalJob) Run(context.Context) (int64, error) {
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return 0, nil
}

func TestRunStopsWithContext(t *testing.T) {
	job := &signalJob{ran: make(chan struct{}, 1)}
	svc, _ := newTestService(t, &fakeLock{}, job)
	svc.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run")
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})})
	assert.Error(t, err)
}
