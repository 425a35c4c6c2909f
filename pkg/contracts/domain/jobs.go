package domain

import (
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Report export formats accepted by the export operations.
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatAll  = "all"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobProgress is a point-in-time progress snapshot, also broadcast over the
// websocket progress channel as the job advances.
type JobProgress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Instrument string  `json:"instrument,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// AnalysisJob is the externally visible state of one full-universe analysis
// run. Results carry per-instrument reports once the job completes; Error is
// set only on failure.
type AnalysisJob struct {
	ID        string      `json:"id" validate:"required,uuid"`
	Status    JobStatus   `json:"status"`
	Progress  JobProgress `json:"progress"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`

	Reports      []InstrumentReport `json:"reports,omitempty"`
	Correlations []CorrelationCell  `json:"correlations,omitempty"`
	ReportFiles  []string           `json:"report_files,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Duration returns how long the job has run, or ran in total once ended.
// Zero before the job starts.
func (j AnalysisJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.EndedAt != nil {
		return j.EndedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}
