package config

import "time"

// Application constants - all hardcoded values for the divrec system
const (
	// Application Info
	AppName    = "divrec"
	AppVersion = "1.0.0"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per minute
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// File Paths (relative to executable)
	DefaultDataDir    = "data"
	DefaultLogsDir    = "logs"
	DefaultPricesDir  = "data/prices"
	DefaultReportsDir = "data/reports"

	// Job Timeouts
	DefaultJobTimeout       = 15 * time.Minute
	ReportGenerationTimeout = 5 * time.Minute

	// WebSocket Buffer Sizes
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	MaxLogFileSize   = 100 * 1024 * 1024 // 100MB
	MaxLogFileAge    = 30                // days
	MaxLogFileBackups = 10

	// Input file patterns
	PriceCSVPattern  = `^[A-Z0-9.]+_daily\.csv$`
	EventsCSVName    = "distributions.csv"

	// API Endpoints (internal)
	APIBasePath        = "/api/v1"
	AnalyticsEndpoint  = "/api/v1/analytics"
	InstrumentsEndpoint = "/api/v1/instruments"
	JobsEndpoint       = "/api/v1/jobs"
	HealthEndpoint     = "/health"
	MetricsEndpoint    = "/metrics"

	// WebSocket Endpoints
	WebSocketEndpoint = "/ws"
)
