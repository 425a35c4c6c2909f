package http

import (
	"context"

	"divrec/internal/services"
	"divrec/pkg/contracts/domain"
)

// JobServiceInterface defines the asynchronous analysis job operations the
// handlers depend on. *services.AnalyticsService satisfies it.
type JobServiceInterface interface {
	StartAnalysisJob(ctx context.Context, opts services.JobOptions) (domain.AnalysisJob, error)
	JobStatus(ctx context.Context, jobID string) (domain.AnalysisJob, error)
	ListJobs(ctx context.Context, status domain.JobStatus) ([]domain.AnalysisJob, error)
	CancelJob(ctx context.Context, jobID string) (domain.AnalysisJob, error)
}
