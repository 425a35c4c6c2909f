package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "divrec/internal/errors"
	"divrec/internal/middleware"
	"divrec/internal/services"
	"divrec/pkg/contracts/domain"
)

// MockJobService is a mock implementation of JobServiceInterface.
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) StartAnalysisJob(ctx context.Context, opts services.JobOptions) (domain.AnalysisJob, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(domain.AnalysisJob), args.Error(1)
}

func (m *MockJobService) JobStatus(ctx context.Context, jobID string) (domain.AnalysisJob, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.AnalysisJob), args.Error(1)
}

func (m *MockJobService) ListJobs(ctx context.Context, status domain.JobStatus) ([]domain.AnalysisJob, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AnalysisJob), args.Error(1)
}

func (m *MockJobService) CancelJob(ctx context.Context, jobID string) (domain.AnalysisJob, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.AnalysisJob), args.Error(1)
}

func setupJobsHandler() (*JobsHandler, *MockJobService) {
	service := &MockJobService{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return NewJobsHandler(service, logger, errorHandler), service
}

func setupJobsRouter(handler *JobsHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/v1/jobs", handler.Routes())
	return r
}

func TestJobsHandler_StartJob(t *testing.T) {
	accepted := domain.AnalysisJob{
		ID:        "3f2c7d1e-9a8b-4c5d-b6e7-0f1a2b3c4d5e",
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	tests := []struct {
		name           string
		requestBody    []byte
		setupMocks     func(*MockJobService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
	}{
		{
			name:        "accepts a job without a body",
			requestBody: nil,
			setupMocks: func(s *MockJobService) {
				s.On("StartAnalysisJob", mock.Anything, services.JobOptions{}).Return(accepted, nil)
			},
			expectedStatus: http.StatusAccepted,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, accepted.ID, body["job_id"])
				assert.Equal(t, "pending", body["status"])
				assert.Equal(t, "/api/v1/jobs/"+accepted.ID, body["poll_url"])
			},
		},
		{
			name:        "passes analysis options through",
			requestBody: []byte(`{"horizon_days": 20, "threshold": 0.9, "reload": true, "export": true}`),
			setupMocks: func(s *MockJobService) {
				s.On("StartAnalysisJob", mock.Anything, mock.MatchedBy(func(opts services.JobOptions) bool {
					return opts.Reload && opts.Export &&
						opts.Analysis.HorizonDays != nil && *opts.Analysis.HorizonDays == 20 &&
						opts.Analysis.Threshold != nil && *opts.Analysis.Threshold == 0.9
				})).Return(accepted, nil)
			},
			expectedStatus: http.StatusAccepted,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, accepted.ID, body["job_id"])
			},
		},
		{
			name:           "rejects a zero horizon",
			requestBody:    []byte(`{"horizon_days": 0}`),
			setupMocks:     func(s *MockJobService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])
			},
		},
		{
			name:           "rejects malformed JSON",
			requestBody:    []byte(`{oops`),
			setupMocks:     func(s *MockJobService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "/errors/invalid-request", body["type"])
				assert.NotEmpty(t, body["trace_id"])
			},
		},
		{
			name:        "universe not loaded",
			requestBody: nil,
			setupMocks: func(s *MockJobService) {
				s.On("StartAnalysisJob", mock.Anything, services.JobOptions{}).
					Return(domain.AnalysisJob{}, services.ErrUniverseNotLoaded)
			},
			expectedStatus: http.StatusConflict,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeUniverseNotLoaded, body["type"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := setupJobsHandler()
			router := setupJobsRouter(handler)
			tt.setupMocks(service)

			var reader io.Reader
			if tt.requestBody != nil {
				reader = bytes.NewReader(tt.requestBody)
			}
			req := httptest.NewRequest("POST", "/api/v1/jobs", reader)
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.validateBody(t, body)
			service.AssertExpectations(t)
		})
	}
}

func TestJobsHandler_JobStatus(t *testing.T) {
	started := time.Now().UTC().Add(-time.Minute)

	t.Run("running job carries polling hints", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("JobStatus", mock.Anything, "job-1").Return(domain.AnalysisJob{
			ID:        "job-1",
			Status:    domain.JobStatusRunning,
			StartedAt: &started,
			Progress:  domain.JobProgress{Current: 1, Total: 3, Percentage: 33.3},
		}, nil)

		req := httptest.NewRequest("GET", "/api/v1/jobs/job-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

		assert.Equal(t, false, body["is_complete"])
		assert.Equal(t, float64(2000), body["poll_after_ms"])
		job := body["job"].(map[string]interface{})
		assert.Equal(t, "job-1", job["id"])
		assert.Equal(t, "running", job["status"])
		service.AssertExpectations(t)
	})

	t.Run("terminal job drops the poll hint", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		ended := time.Now().UTC()
		service.On("JobStatus", mock.Anything, "job-2").Return(domain.AnalysisJob{
			ID:        "job-2",
			Status:    domain.JobStatusCompleted,
			StartedAt: &started,
			EndedAt:   &ended,
		}, nil)

		req := httptest.NewRequest("GET", "/api/v1/jobs/job-2", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

		assert.Equal(t, true, body["is_complete"])
		assert.NotContains(t, body, "poll_after_ms")
		service.AssertExpectations(t)
	})

	t.Run("unknown job", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("JobStatus", mock.Anything, "missing").
			Return(domain.AnalysisJob{}, services.ErrJobNotFound)

		req := httptest.NewRequest("GET", "/api/v1/jobs/missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, apierrors.TypeJobNotFound, body["type"])
		service.AssertExpectations(t)
	})
}

func TestJobsHandler_ListJobs(t *testing.T) {
	jobs := []domain.AnalysisJob{
		{ID: "job-new", Status: domain.JobStatusRunning},
		{ID: "job-old", Status: domain.JobStatusCompleted},
	}

	t.Run("lists every job newest first", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("ListJobs", mock.Anything, domain.JobStatus("")).Return(jobs, nil)

		req := httptest.NewRequest("GET", "/api/v1/jobs", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, float64(2), body["count"])
		service.AssertExpectations(t)
	})

	t.Run("filters by status", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("ListJobs", mock.Anything, domain.JobStatusRunning).Return(jobs[:1], nil)

		req := httptest.NewRequest("GET", "/api/v1/jobs?status=running", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, float64(1), body["count"])
		service.AssertExpectations(t)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		req := httptest.NewRequest("GET", "/api/v1/jobs?status=paused", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		service.AssertExpectations(t)
	})
}

func TestJobsHandler_CancelJob(t *testing.T) {
	t.Run("cancels a running job", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("CancelJob", mock.Anything, "job-1").Return(domain.AnalysisJob{
			ID:     "job-1",
			Status: domain.JobStatusCancelled,
		}, nil)

		req := httptest.NewRequest("POST", "/api/v1/jobs/job-1/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "cancellation requested", body["message"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "cancelled", data["status"])
		service.AssertExpectations(t)
	})

	t.Run("unknown job", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("CancelJob", mock.Anything, "missing").
			Return(domain.AnalysisJob{}, services.ErrJobNotFound)

		req := httptest.NewRequest("POST", "/api/v1/jobs/missing/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		service.AssertExpectations(t)
	})

	t.Run("job already finished", func(t *testing.T) {
		handler, service := setupJobsHandler()
		router := setupJobsRouter(handler)

		service.On("CancelJob", mock.Anything, "job-done").
			Return(domain.AnalysisJob{}, services.ErrJobNotRunning)

		req := httptest.NewRequest("POST", "/api/v1/jobs/job-done/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "JOB_NOT_RUNNING", body["error_code"])
		service.AssertExpectations(t)
	})
}
