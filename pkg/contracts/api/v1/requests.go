// Package api contains API contract definitions for the dividend recovery
// analytics service. Version v1 represents the current stable API version.
package api

// Common request parameters

// PaginationRequest represents common pagination parameters
type PaginationRequest struct {
	Page     int    `json:"page" query:"page" validate:"min=1"`
	PageSize int    `json:"page_size" query:"page_size" validate:"min=1,max=100"`
	Sort     string `json:"sort" query:"sort" validate:"omitempty,oneof=asc desc"`
	SortBy   string `json:"sort_by" query:"sort_by"`
}

// DateRangeRequest represents a date range in requests
type DateRangeRequest struct {
	From string `json:"from" query:"from" validate:"omitempty,iso8601"`
	To   string `json:"to" query:"to" validate:"omitempty,iso8601"`
}

// Analytics API Requests

// RecoveryAnalysisRequest asks for one instrument's recovery analysis.
// Horizon and threshold override the configured defaults when present.
type RecoveryAnalysisRequest struct {
	Instrument  string   `json:"instrument" param:"instrument" validate:"required,instrument"`
	HorizonDays *int     `json:"horizon_days,omitempty" query:"horizon_days" validate:"omitempty,gt=0,lte=365"`
	Threshold   *float64 `json:"threshold,omitempty" query:"threshold" validate:"omitempty,gt=0,lte=1.2"`
}

// CorrelationRequest asks for the population correlation ranking.
// MinCorrelation filters the report to cells with |r| at or above it; the
// engine's full grid stays available at min_correlation=0.
type CorrelationRequest struct {
	MinCorrelation *float64 `json:"min_correlation,omitempty" query:"min_correlation" validate:"omitempty,min=0,max=1"`
	Limit          int      `json:"limit,omitempty" query:"limit" validate:"omitempty,min=1,max=10000"`
}

// SimilarityRequest asks for the nearest historical analogues of one event.
type SimilarityRequest struct {
	Instrument string   `json:"instrument" validate:"required,instrument"`
	ExDate     string   `json:"ex_date" validate:"required,iso8601"`
	TopK       *int     `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	Floor      *float64 `json:"floor,omitempty" validate:"omitempty,min=-1,max=1"`
}

// Job API Requests

// JobStartRequest starts a full-universe analysis job. Reload forces a
// fresh data load first; Export writes the CSV/XLSX report set when the
// job completes.
type JobStartRequest struct {
	HorizonDays *int     `json:"horizon_days,omitempty" validate:"omitempty,gt=0,lte=365"`
	Threshold   *float64 `json:"threshold,omitempty" validate:"omitempty,gt=0,lte=1.2"`
	Reload      bool     `json:"reload,omitempty"`
	Export      bool     `json:"export,omitempty"`
}

// JobCancelRequest cancels a running analysis job.
type JobCancelRequest struct {
	JobID string `json:"job_id" param:"id" validate:"required,uuid"`
}

// JobListRequest lists analysis jobs, optionally filtered by status.
type JobListRequest struct {
	Status string `json:"status" query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
}

// Report API Requests

// ReportExportRequest writes the full report set for the loaded universe.
type ReportExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv xlsx all"`
}
