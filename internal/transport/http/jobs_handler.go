package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apierrors "divrec/internal/errors"
	"divrec/internal/infrastructure"
	"divrec/internal/middleware"
	"divrec/internal/services"
	api "divrec/pkg/contracts/api/v1"
	"divrec/pkg/contracts/domain"
)

// JobsHandler handles asynchronous full-universe analysis jobs. Progress is
// broadcast over the websocket hub; these endpoints cover the REST side:
// submission, polling, listing, and cancellation.
type JobsHandler struct {
	service      JobServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(service JobServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *JobsHandler {
	return &JobsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "jobs_handler")),
		errorHandler: errorHandler,
		validation:   middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
	}
}

// Routes returns the job routes.
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", middleware.AnalysisTraceHandler("universe", h.StartJob))
	r.Get("/", h.ListJobs)
	r.Get("/{id}", h.JobStatus)
	r.Post("/{id}/cancel", h.CancelJob)

	return r
}

// StartJob handles POST /jobs. It submits a full-universe analysis and
// returns 202 Accepted with the job ID and a poll URL; progress streams over
// the websocket hub while the job runs.
func (h *JobsHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	tracer := otel.Tracer("jobs-handler")
	ctx, span := tracer.Start(r.Context(), "http.start_analysis_job")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", "/api/v1/jobs"),
		attribute.String("request_id", reqID),
	)

	var req api.JobStartRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			h.renderProblem(w, r, apierrors.NewProblemDetails(
				http.StatusBadRequest,
				"/errors/invalid-request",
				"Invalid Request Body",
				"request body must be valid JSON",
				r.URL.Path,
			))
			return
		}
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	job, err := h.service.StartAnalysisJob(ctx, services.JobOptions{
		Analysis: services.AnalysisOptions{
			HorizonDays: req.HorizonDays,
			Threshold:   req.Threshold,
		},
		Reload: req.Reload,
		Export: req.Export,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job submission failed")
		h.logger.ErrorContext(ctx, "analysis job submission failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	span.SetAttributes(attribute.String("job_id", job.ID))

	h.logger.InfoContext(ctx, "analysis job accepted",
		slog.String("request_id", reqID),
		slog.String("job_id", job.ID),
		slog.Bool("reload", req.Reload),
		slog.Bool("export", req.Export))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":   job.ID,
		"status":   job.Status,
		"message":  "analysis job accepted",
		"poll_url": fmt.Sprintf("/api/v1/jobs/%s", job.ID),
	})
}

// JobStatus handles GET /jobs/{id}. The response carries polling hints so
// clients without a websocket connection know when to come back.
func (h *JobsHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	jobID := chi.URLParam(r, "id")

	tracer := otel.Tracer("jobs-handler")
	ctx, span := tracer.Start(r.Context(), "http.job_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", "/api/v1/jobs/{id}"),
		attribute.String("request_id", reqID),
		attribute.String("job_id", jobID),
	)

	job, err := h.service.JobStatus(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status lookup failed")
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	resp := map[string]interface{}{
		"job":         job,
		"is_complete": job.Status.IsTerminal(),
	}
	if !job.Status.IsTerminal() {
		resp["poll_after_ms"] = 2000
	}

	render.JSON(w, r, resp)
}

// ListJobs handles GET /jobs with an optional status filter.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		string(domain.JobStatusPending),
		string(domain.JobStatusRunning),
		string(domain.JobStatusCompleted),
		string(domain.JobStatusFailed),
		string(domain.JobStatusCancelled),
	}, "")
	if !ok {
		return
	}

	jobs, err := h.service.ListJobs(ctx, domain.JobStatus(status))
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   jobs,
		"count":  len(jobs),
	})
}

// CancelJob handles POST /jobs/{id}/cancel. Cancellation is asynchronous:
// the job flips to cancelled immediately and its workers unwind through
// context cancellation.
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	jobID := chi.URLParam(r, "id")

	tracer := otel.Tracer("jobs-handler")
	ctx, span := tracer.Start(r.Context(), "http.cancel_job")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", "/api/v1/jobs/{id}/cancel"),
		attribute.String("request_id", reqID),
		attribute.String("job_id", jobID),
	)

	job, err := h.service.CancelJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancellation failed")
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	h.logger.InfoContext(ctx, "analysis job cancelled",
		slog.String("request_id", reqID),
		slog.String("job_id", jobID))

	render.JSON(w, r, map[string]interface{}{
		"status":  "success",
		"data":    job,
		"message": "cancellation requested",
	})
}

// renderProblem renders an RFC 7807 problem with the trace ID attached. When
// no span is recording, the request ID stands in so clients always get a
// correlation handle.
func (h *JobsHandler) renderProblem(w http.ResponseWriter, r *http.Request, problem *apierrors.ProblemDetails) {
	traceID := infrastructure.TraceIDFromContext(r.Context())
	if traceID == "" {
		traceID = middleware.GetReqID(r.Context())
	}
	problem.WithExtension("trace_id", traceID)
	if err := render.Render(w, r, problem); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render problem details",
			slog.String("error", err.Error()))
	}
}
