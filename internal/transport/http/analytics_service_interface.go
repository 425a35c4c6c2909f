package http

import (
	"context"
	"time"

	"divrec/internal/services"
	"divrec/pkg/contracts/domain"
)

// AnalyticsServiceInterface defines the analytics operations the handlers
// depend on. *services.AnalyticsService satisfies it.
type AnalyticsServiceInterface interface {
	LoadUniverse(ctx context.Context) (*domain.UniverseSummary, error)
	UniverseSummary(ctx context.Context) (*domain.UniverseSummary, error)
	Instruments(ctx context.Context) ([]domain.InstrumentSummary, error)
	QualityReports(ctx context.Context) ([]domain.QualityReport, error)
	AnalyzeInstrument(ctx context.Context, instrument string, opts services.AnalysisOptions) (*domain.InstrumentReport, error)
	CorrelationRanking(ctx context.Context, minCorrelation *float64, limit int) ([]domain.CorrelationCell, error)
	SimilarEvents(ctx context.Context, instrument string, exDate time.Time, opts services.SimilarityOptions) (*domain.SimilarityResult, error)
	ExportReports(ctx context.Context, format string, opts services.AnalysisOptions) ([]string, error)
}
