package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"divrec/pkg/contracts/domain"
)

// insertJob registers a hand-built job so lifecycle transitions can be
// tested without racing a real analysis run.
func insertJob(s *AnalyticsService, id string, status domain.JobStatus, created time.Time, cancel context.CancelFunc) *analysisJob {
	if cancel == nil {
		cancel = func() {}
	}
	job := &analysisJob{
		id:     id,
		cancel: cancel,
		state: domain.AnalysisJob{
			ID:        id,
			Status:    status,
			CreatedAt: created,
		},
	}
	s.jobsMu.Lock()
	s.jobs[id] = job
	s.jobsMu.Unlock()
	return job
}

func waitForBroadcast(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStartAnalysisJob(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a loaded universe unless reloading", func(t *testing.T) {
		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), nil, nil, newTestLogger())
		require.NoError(t, err)

		_, err = svc.StartAnalysisJob(ctx, JobOptions{})
		assert.ErrorIs(t, err, ErrUniverseNotLoaded)
	})

	t.Run("runs to completion and broadcasts progress", func(t *testing.T) {
		completed := make(chan struct{})
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "universe_loaded", mock.Anything).Once()
		hub.On("Broadcast", "job_started", mock.Anything).Once()
		hub.On("Broadcast", "job_progress", mock.Anything).Times(3)
		hub.On("Broadcast", "job_completed", mock.Anything).Once().
			Run(func(mock.Arguments) { close(completed) })

		svc, _ := newTestService(t, hub)
		_, err := svc.LoadUniverse(ctx)
		require.NoError(t, err)

		started, err := svc.StartAnalysisJob(ctx, JobOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, started.ID)
		assert.False(t, started.CreatedAt.IsZero())

		waitForBroadcast(t, completed, "job completion")

		job, err := svc.JobStatus(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		require.Len(t, job.Reports, 3)
		assert.Empty(t, job.ReportFiles)
		assert.Empty(t, job.Error)
		assert.InDelta(t, 100.0, job.Progress.Percentage, 1e-9)
		assert.Equal(t, "analysis complete", job.Progress.Message)
		require.NotNil(t, job.StartedAt)
		require.NotNil(t, job.EndedAt)
		assert.GreaterOrEqual(t, job.Duration(), time.Duration(0))

		hub.AssertExpectations(t)
	})

	t.Run("reload loads the universe inside the job", func(t *testing.T) {
		completed := make(chan struct{})
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_completed", mock.Anything).Once().
			Run(func(mock.Arguments) { close(completed) })
		hub.On("Broadcast", mock.Anything, mock.Anything).Maybe()

		svc, _ := newTestService(t, hub)

		started, err := svc.StartAnalysisJob(ctx, JobOptions{Reload: true})
		require.NoError(t, err)

		waitForBroadcast(t, completed, "job completion")

		job, err := svc.JobStatus(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		assert.Len(t, job.Reports, 3)
	})

	t.Run("export writes the report files", func(t *testing.T) {
		completed := make(chan struct{})
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_completed", mock.Anything).Once().
			Run(func(mock.Arguments) { close(completed) })
		hub.On("Broadcast", mock.Anything, mock.Anything).Maybe()

		svc, _ := newTestService(t, hub)
		_, err := svc.LoadUniverse(ctx)
		require.NoError(t, err)

		started, err := svc.StartAnalysisJob(ctx, JobOptions{Export: true})
		require.NoError(t, err)

		waitForBroadcast(t, completed, "job completion")

		job, err := svc.JobStatus(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		require.Len(t, job.ReportFiles, 6)
		for _, file := range job.ReportFiles {
			info, err := os.Stat(file)
			require.NoError(t, err, "report file %s", file)
			assert.Positive(t, info.Size())
		}
	})

	t.Run("reload failure fails the job", func(t *testing.T) {
		failed := make(chan struct{})
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_failed", mock.Anything).Once().
			Run(func(mock.Arguments) { close(failed) })
		hub.On("Broadcast", mock.Anything, mock.Anything).Maybe()

		// No fixture files: the reload inside the job cannot find prices.
		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), hub, nil, newTestLogger())
		require.NoError(t, err)

		started, err := svc.StartAnalysisJob(ctx, JobOptions{Reload: true})
		require.NoError(t, err)

		waitForBroadcast(t, failed, "job failure")

		job, err := svc.JobStatus(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.NotEmpty(t, job.Error)
		assert.Empty(t, job.Reports)

		hub.AssertExpectations(t)
	})
}

func TestJobStatus(t *testing.T) {
	svc, _ := newTestService(t, relaxedHub())

	_, err := svc.JobStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels a pending job", func(t *testing.T) {
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_cancelled", mock.Anything).Once()

		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), hub, nil, newTestLogger())
		require.NoError(t, err)

		cancelCalled := false
		insertJob(svc, "job-pending", domain.JobStatusPending, time.Now().UTC(),
			func() { cancelCalled = true })

		state, err := svc.CancelJob(ctx, "job-pending")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, state.Status)
		assert.Equal(t, "cancellation requested", state.Progress.Message)
		require.NotNil(t, state.EndedAt)
		assert.True(t, cancelCalled)

		hub.AssertExpectations(t)
	})

	t.Run("rejects terminal jobs", func(t *testing.T) {
		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), nil, nil, newTestLogger())
		require.NoError(t, err)
		insertJob(svc, "job-done", domain.JobStatusCompleted, time.Now().UTC(), nil)

		_, err = svc.CancelJob(ctx, "job-done")
		assert.ErrorIs(t, err, ErrJobNotRunning)
	})

	t.Run("unknown job", func(t *testing.T) {
		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), nil, nil, newTestLogger())
		require.NoError(t, err)

		_, err = svc.CancelJob(ctx, "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestFinishJob(t *testing.T) {
	ctx := context.Background()

	t.Run("cancellation error marks the job cancelled", func(t *testing.T) {
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_cancelled", mock.Anything).Once()

		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), hub, nil, newTestLogger())
		require.NoError(t, err)
		job := insertJob(svc, "job-a", domain.JobStatusRunning, time.Now().UTC(), nil)

		svc.finishJob(ctx, job, context.Canceled)
		assert.Equal(t, domain.JobStatusCancelled, job.snapshot().Status)
		hub.AssertExpectations(t)
	})

	t.Run("other errors mark the job failed", func(t *testing.T) {
		hub := &MockWebSocketHub{}
		hub.On("Broadcast", "job_failed", mock.Anything).Once()

		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), hub, nil, newTestLogger())
		require.NoError(t, err)
		job := insertJob(svc, "job-b", domain.JobStatusRunning, time.Now().UTC(), nil)

		svc.finishJob(ctx, job, errors.New("detector exploded"))
		state := job.snapshot()
		assert.Equal(t, domain.JobStatusFailed, state.Status)
		assert.Equal(t, "detector exploded", state.Error)
		hub.AssertExpectations(t)
	})

	t.Run("an earlier cancel wins", func(t *testing.T) {
		svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), nil, nil, newTestLogger())
		require.NoError(t, err)
		job := insertJob(svc, "job-c", domain.JobStatusCancelled, time.Now().UTC(), nil)

		svc.finishJob(ctx, job, errors.New("late failure"))
		state := job.snapshot()
		assert.Equal(t, domain.JobStatusCancelled, state.Status)
		assert.Empty(t, state.Error)
	})
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), nil, nil, newTestLogger())
	require.NoError(t, err)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	insertJob(svc, "job-old", domain.JobStatusCompleted, base, nil)
	insertJob(svc, "job-mid", domain.JobStatusRunning, base.Add(time.Minute), nil)
	insertJob(svc, "job-new", domain.JobStatusPending, base.Add(2*time.Minute), nil)

	t.Run("newest first", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, "")
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, "job-new", jobs[0].ID)
		assert.Equal(t, "job-mid", jobs[1].ID)
		assert.Equal(t, "job-old", jobs[2].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, domain.JobStatusRunning)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-mid", jobs[0].ID)
	})

	t.Run("no matches", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, domain.JobStatusFailed)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestCancelAllJobs(t *testing.T) {
	ctx := context.Background()
	hub := &MockWebSocketHub{}
	hub.On("Broadcast", "job_cancelled", mock.Anything).Times(2)

	svc, err := NewAnalyticsService(testAnalyticsConfig(), testPaths(t), hub, nil, newTestLogger())
	require.NoError(t, err)

	base := time.Now().UTC()
	insertJob(svc, "job-1", domain.JobStatusRunning, base, nil)
	insertJob(svc, "job-2", domain.JobStatusPending, base, nil)
	insertJob(svc, "job-3", domain.JobStatusCompleted, base, nil)

	assert.Equal(t, 2, svc.ActiveJobCount())

	svc.CancelAllJobs(ctx)

	assert.Equal(t, 0, svc.ActiveJobCount())
	for _, id := range []string{"job-1", "job-2"} {
		job, err := svc.JobStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
		assert.Equal(t, "cancelled during shutdown", job.Progress.Message)
	}

	done, err := svc.JobStatus(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)

	hub.AssertExpectations(t)
}
