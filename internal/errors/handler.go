package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"divrec/internal/pattern"
	"divrec/internal/recovery"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeUnauthorized    = "/errors/unauthorized"
	TypeForbidden       = "/errors/forbidden"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypeConflict        = "/errors/conflict"
	TypePayloadTooLarge = "/errors/payload-too-large"
)

// Domain-specific error types
const (
	TypeEventNotFound       = "/errors/analytics/event-not-found"
	TypeInsufficientData    = "/errors/analytics/insufficient-data"
	TypeInsufficientSample  = "/errors/analytics/insufficient-sample"
	TypeUndefinedSimilarity = "/errors/analytics/undefined-similarity"
	TypeInstrumentNotFound  = "/errors/data/instrument-not-found"
	TypeUniverseNotLoaded   = "/errors/data/universe-not-loaded"
	TypeDataCorrupted       = "/errors/data/corrupted"
	TypeJobNotFound         = "/errors/jobs/not-found"
	TypeWebSocketUpgrade    = "/errors/websocket/upgrade-failed"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	// Get request ID for tracing
	reqID := middleware.GetReqID(r.Context())

	// Log the error with full context
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Convert to problem details
	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	// Add stack trace in development
	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	// Render the error response
	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details.
//
// Engine errors are matched by type so their fields survive into problem
// extensions. The insufficient-sample and insufficient-data cases stay
// distinguishable from plain not-found: "no events recovered" and "not
// enough events to judge" must never collapse into one response shape.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	// Check for context errors first
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	// Engine domain errors carry structured fields; surface them.
	var validationErr *recovery.ValidationError
	if errors.As(err, &validationErr) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			validationErr.Error(),
			r.URL.Path,
		).WithExtension("field", validationErr.Field)
	}

	var eventNotFound *recovery.EventNotFoundError
	if errors.As(err, &eventNotFound) {
		return NewProblemDetails(
			http.StatusNotFound,
			TypeEventNotFound,
			"Event Not Found",
			eventNotFound.Error(),
			r.URL.Path,
		).WithExtension("instrument", eventNotFound.Instrument).
			WithExtension("ex_date", eventNotFound.ExDate.Format("2006-01-02"))
	}

	var insufficientData *recovery.InsufficientDataError
	if errors.As(err, &insufficientData) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInsufficientData,
			"Insufficient Data",
			insufficientData.Error(),
			r.URL.Path,
		).WithExtension("instrument", insufficientData.Instrument).
			WithExtension("ex_date", insufficientData.ExDate.Format("2006-01-02"))
	}

	var insufficientSample *recovery.InsufficientSampleError
	if errors.As(err, &insufficientSample) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInsufficientSample,
			"Insufficient Sample",
			insufficientSample.Error(),
			r.URL.Path,
		).WithExtension("event_count", insufficientSample.Count).
			WithExtension("min_sample_size", insufficientSample.MinSampleSize)
	}

	var undefinedSimilarity *pattern.UndefinedSimilarityError
	if errors.As(err, &undefinedSimilarity) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeUndefinedSimilarity,
			"Similarity Undefined",
			undefinedSimilarity.Error(),
			r.URL.Path,
		).WithExtension("instrument", undefinedSimilarity.Instrument).
			WithExtension("usable_dimensions", undefinedSimilarity.Dimensions)
	}

	// Check for our custom API errors
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	// Fallbacks on error text for errors without a structured type
	switch {
	case strings.Contains(err.Error(), "not found"):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeNotFound,
			"Resource Not Found",
			err.Error(),
			r.URL.Path,
		)

	case strings.Contains(err.Error(), "unauthorized"):
		return NewProblemDetails(
			http.StatusUnauthorized,
			TypeUnauthorized,
			"Unauthorized",
			"Authentication required to access this resource",
			r.URL.Path,
		)

	case strings.Contains(err.Error(), "forbidden"):
		return NewProblemDetails(
			http.StatusForbidden,
			TypeForbidden,
			"Forbidden",
			"You don't have permission to access this resource",
			r.URL.Path,
		)

	case strings.Contains(err.Error(), "rate limit"):
		return NewProblemDetails(
			http.StatusTooManyRequests,
			TypeRateLimit,
			"Rate Limit Exceeded",
			"Too many requests. Please try again later.",
			r.URL.Path,
		).WithExtension("retry_after", 60)

	case strings.Contains(err.Error(), "conflict"):
		return NewProblemDetails(
			http.StatusConflict,
			TypeConflict,
			"Conflict",
			err.Error(),
			r.URL.Path,
		)

	case strings.Contains(err.Error(), "payload too large"):
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The request body exceeds the maximum allowed size",
			r.URL.Path,
		)

	default:
		// Generic internal error
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request",
			r.URL.Path,
		)
	}
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	// Map error codes to problem types
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "INSTRUMENT_NOT_FOUND":
		problemType = TypeInstrumentNotFound
	case "UNIVERSE_NOT_LOADED":
		problemType = TypeUniverseNotLoaded
	case "INSTRUMENT_INVALID":
		problemType = TypeDataCorrupted
	case "NO_INSTRUMENTS_FOUND", "NO_EVENTS_FOUND":
		problemType = TypeNotFound
	case "EVENT_NOT_FOUND":
		problemType = TypeEventNotFound
	case "JOB_NOT_FOUND":
		problemType = TypeJobNotFound
	case "JOB_NOT_RUNNING":
		problemType = TypeConflict
	case "UNAUTHORIZED":
		problemType = TypeUnauthorized
	case "FORBIDDEN":
		problemType = TypeForbidden
	case "CONFLICT":
		problemType = TypeConflict
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "SERVICE_UNAVAILABLE":
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	// Add details if present
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	// Log the panic
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	// Create problem details
	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	// Add panic details in development
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Middleware returns an error handling middleware
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrap the response writer to capture errors
		ww := &errorResponseWriter{
			ResponseWriter: w,
			handler:        h,
			request:        r,
		}

		// Defer panic recovery
		defer func() {
			if err := recover(); err != nil {
				h.HandlePanic(ww, r, err)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// errorResponseWriter wraps http.ResponseWriter to capture errors
type errorResponseWriter struct {
	http.ResponseWriter
	handler *ErrorHandler
	request *http.Request
	written bool
	status  int
}

func (w *errorResponseWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true

		// Intercept error status codes
		if status >= 400 && status < 600 {
			// Log error responses
			w.handler.logger.WarnContext(w.request.Context(), "error response",
				slog.Int("status", status),
				slog.String("path", w.request.URL.Path),
				slog.String("method", w.request.Method),
			)
		}

		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *errorResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// JSON helper for consistent JSON error responses
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
