package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "divrec/internal/errors"
	"divrec/internal/middleware"
	"divrec/internal/services"
	api "divrec/pkg/contracts/api/v1"
)

// exDateLayout is the wire format for event dates in requests.
const exDateLayout = "2006-01-02"

// AnalyticsHandler handles universe, instrument, and analysis HTTP requests
// with RFC 7807 error responses.
type AnalyticsHandler struct {
	service      AnalyticsServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(service AnalyticsServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalyticsHandler {
	return &AnalyticsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analytics_handler")),
		errorHandler: errorHandler,
		validation:   middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
	}
}

// Routes returns the analytics routes.
func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/universe", h.UniverseSummary)
	r.Post("/universe/load", h.LoadUniverse)

	r.Get("/instruments", h.Instruments)
	r.Get("/quality", h.QualityReports)

	r.Route("/instruments/{instrument}", func(r chi.Router) {
		r.Use(h.InstrumentCtx)
		r.Get("/recovery", middleware.AnalysisTraceHandler("instrument", h.RecoveryAnalysis))
	})

	r.Get("/correlations", h.CorrelationRanking)
	r.Post("/similarity", h.SimilarEvents)
	r.Post("/exports", h.ExportReports)

	return r
}

// InstrumentCtx validates the instrument URL parameter. Handlers read the
// parameter themselves via chi.URLParam; nothing extra rides the context.
func (h *AnalyticsHandler) InstrumentCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "instrument") == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("instrument", "instrument symbol is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoadUniverse handles POST /universe/load. It (re)loads the price and event
// data from the configured data directory.
func (h *AnalyticsHandler) LoadUniverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	h.logger.InfoContext(ctx, "universe load requested",
		slog.String("request_id", reqID))

	summary, err := h.service.LoadUniverse(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "universe load failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   summary,
	})
}

// UniverseSummary handles GET /universe.
func (h *AnalyticsHandler) UniverseSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.UniverseSummary(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   summary,
	})
}

// Instruments handles GET /instruments.
func (h *AnalyticsHandler) Instruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.service.Instruments(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   instruments,
		"count":  len(instruments),
	})
}

// QualityReports handles GET /quality.
func (h *AnalyticsHandler) QualityReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.QualityReports(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   reports,
		"count":  len(reports),
	})
}

// RecoveryAnalysis handles GET /instruments/{instrument}/recovery. Horizon
// and threshold query parameters override the configured defaults.
func (h *AnalyticsHandler) RecoveryAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	instrument := chi.URLParam(r, "instrument")

	req := api.RecoveryAnalysisRequest{Instrument: instrument}

	if raw := r.URL.Query().Get("horizon_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("horizon_days", "horizon_days must be an integer"))
			return
		}
		req.HorizonDays = &days
	}

	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("threshold", "threshold must be a number"))
			return
		}
		req.Threshold = &threshold
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	report, err := h.service.AnalyzeInstrument(ctx, req.Instrument, services.AnalysisOptions{
		HorizonDays: req.HorizonDays,
		Threshold:   req.Threshold,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	h.logger.InfoContext(ctx, "instrument analyzed",
		slog.String("request_id", reqID),
		slog.String("instrument", req.Instrument),
		slog.Int("events", len(report.Results)))

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   report,
	})
}

// CorrelationRanking handles GET /correlations. min_correlation filters the
// ranking to cells with |r| at or above the floor; limit caps the rows.
func (h *AnalyticsHandler) CorrelationRanking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := api.CorrelationRequest{}

	if raw := r.URL.Query().Get("min_correlation"); raw != "" {
		floor, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("min_correlation", "min_correlation must be a number"))
			return
		}
		req.MinCorrelation = &floor
	}

	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 10000, 0)
	if !ok {
		return
	}
	req.Limit = limit

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	cells, err := h.service.CorrelationRanking(ctx, req.MinCorrelation, req.Limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	middleware.RecordCorrelationQuery(ctx, "universe")

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   cells,
		"count":  len(cells),
	})
}

// SimilarEvents handles POST /similarity. The body names one event; the
// response carries its nearest historical analogues.
func (h *AnalyticsHandler) SimilarEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var req api.SimilarityRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError("request body must be valid JSON"))
		return
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	exDate, err := time.Parse(exDateLayout, req.ExDate)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("ex_date", "ex_date must be formatted YYYY-MM-DD"))
		return
	}

	result, err := h.service.SimilarEvents(ctx, req.Instrument, exDate, services.SimilarityOptions{
		TopK:  req.TopK,
		Floor: req.Floor,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	middleware.RecordSimilarityQuery(ctx, req.Instrument)

	h.logger.InfoContext(ctx, "similarity query served",
		slog.String("request_id", reqID),
		slog.String("instrument", req.Instrument),
		slog.String("ex_date", req.ExDate),
		slog.Int("matches", len(result.Matches)))

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// ExportReports handles POST /exports. It runs a synchronous analysis over
// the loaded universe and writes the report files for the requested format.
func (h *AnalyticsHandler) ExportReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var req api.ReportExportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError("request body must be valid JSON"))
		return
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	files, err := h.service.ExportReports(ctx, req.Format, services.AnalysisOptions{})
	if err != nil {
		h.logger.ErrorContext(ctx, "report export failed",
			slog.String("request_id", reqID),
			slog.String("format", req.Format),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	middleware.RecordReportExport(ctx, req.Format)

	h.logger.InfoContext(ctx, "reports exported",
		slog.String("request_id", reqID),
		slog.String("format", req.Format),
		slog.Int("files", len(files)))

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"format": req.Format,
			"files":  files,
		},
		"count": len(files),
	})
}
