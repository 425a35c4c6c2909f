package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"divrec/internal/config"
	ws "divrec/internal/websocket"
)

// HealthService provides health check functionality
type HealthService struct {
	version      string
	buildTime    string
	buildID      string
	paths        *config.Paths
	analytics    *AnalyticsService
	webSocketHub *ws.Hub
	startTime    time.Time
	logger       *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalFiles       int     `json:"total_files"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveJobs       int     `json:"active_jobs"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// NewHealthService creates a new health service with injected dependencies
func NewHealthService(version string, paths *config.Paths, analytics *AnalyticsService, webSocketHub *ws.Hub, logger *slog.Logger) *HealthService {
	return NewHealthServiceWithBuildInfo(version, "", "", paths, analytics, webSocketHub, logger)
}

// NewHealthServiceWithBuildInfo creates a new health service with build information
func NewHealthServiceWithBuildInfo(version, buildTime, buildID string, paths *config.Paths, analytics *AnalyticsService, webSocketHub *ws.Hub, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized with full dependencies",
		slog.String("version", version),
		slog.String("build_time", buildTime),
		slog.String("build_id", buildID))

	return &HealthService{
		version:      version,
		buildTime:    buildTime,
		buildID:      buildID,
		paths:        paths,
		analytics:    analytics,
		webSocketHub: webSocketHub,
		startTime:    time.Now(),
		logger:       logger,
	}
}

// NewHealthServiceWithLogger creates a new health service with a specific logger (simplified constructor for test)
func NewHealthServiceWithLogger(version string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", version))

	return &HealthService{
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.Debug("HealthCheck: performing health check",
		slog.String("version", hs.version),
		slog.String("uptime", time.Since(hs.startTime).String()))

	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}

	// Check individual services
	status.Services["universe"] = hs.checkUniverseHealth(ctx)
	status.Services["websocket"] = hs.checkWebSocketHealth()
	status.Services["jobs"] = hs.checkJobsHealth()
	status.Services["data"] = hs.checkDataHealth()

	// Determine overall readiness
	allReady := true
	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			allReady = false
			break
		}
	}

	if !allReady {
		status.Status = "not_ready"
	}

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}

	// Include build info if available
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.buildID != "" {
		result["build_id"] = hs.buildID
	}

	return result
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	var totalFiles int
	var totalSize int64

	if hs.paths != nil {
		// Count files and calculate size
		filepath.Walk(hs.paths.DataDir, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				totalFiles++
				totalSize += info.Size()
			}
			return nil
		})
	}

	clients := 0
	if hs.webSocketHub != nil {
		clients = hs.webSocketHub.ClientCount()
	}
	activeJobs := 0
	if hs.analytics != nil {
		activeJobs = hs.analytics.ActiveJobCount()
	}

	return SystemStats{
		UptimeSeconds:    time.Since(hs.startTime).Seconds(),
		TotalFiles:       totalFiles,
		TotalSizeBytes:   totalSize,
		WebSocketClients: clients,
		ActiveJobs:       activeJobs,
		GoVersion:        runtime.Version(),
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
	}, nil
}

// checkUniverseHealth checks whether analysis data is loaded
func (hs *HealthService) checkUniverseHealth(ctx context.Context) ServiceHealth {
	if hs.analytics == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "analytics service not initialized",
		}
	}

	summary, err := hs.analytics.UniverseSummary(ctx)
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Universe error: %v", err),
		}
	}

	return ServiceHealth{
		Status: "ready",
		Message: fmt.Sprintf("%d instruments, %d events loaded",
			summary.Instruments, summary.TotalEvents),
	}
}

// checkWebSocketHealth checks WebSocket service health
func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	// WebSocket hub is always considered healthy if it's running
	return ServiceHealth{
		Status:  "ready",
		Message: "WebSocket service is healthy",
		Uptime:  time.Since(hs.startTime).String(),
	}
}

// checkJobsHealth checks the analysis job manager health
func (hs *HealthService) checkJobsHealth() ServiceHealth {
	if hs.analytics == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "job manager not initialized",
		}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d active jobs", hs.analytics.ActiveJobCount()),
	}
}

// checkDataHealth checks data directory health
func (hs *HealthService) checkDataHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "paths not configured",
		}
	}

	dataDir := hs.paths.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Data directory not found: %s", dataDir),
		}
	}

	// Check if we can write to the data tree
	if err := os.MkdirAll(hs.paths.CacheDir, 0755); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Cannot write to data directory: %v", err),
		}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: "Data directories are healthy",
	}
}

// GetDetailedHealth returns comprehensive health information
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	stats, _ := hs.SystemStats(ctx)

	detailed := map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     stats,
	}

	if hs.analytics != nil {
		if summary, err := hs.analytics.UniverseSummary(ctx); err == nil {
			detailed["universe"] = summary
		}
	}

	return detailed
}
