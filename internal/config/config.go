package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	JobTimeout      time.Duration `yaml:"job_timeout" envconfig:"JOB_TIMEOUT" default:"15m"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"true"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	ReportsDir    string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"data/reports"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// AnalyticsConfig contains the analysis parameters. Values are plain data;
// the services layer converts them into engine parameters and passes those
// by value into every call, so nothing here acts as ambient state.
type AnalyticsConfig struct {
	MaxHorizonDays    int       `yaml:"max_horizon_days" envconfig:"MAX_HORIZON_DAYS" default:"30"`
	RecoveryThreshold float64   `yaml:"recovery_threshold" envconfig:"RECOVERY_THRESHOLD" default:"1.0"`
	MinSampleSize     int       `yaml:"min_sample_size" envconfig:"MIN_SAMPLE_SIZE" default:"20"`
	Percentiles       []float64 `yaml:"percentiles" envconfig:"PERCENTILES" default:"0.25,0.5,0.75"`

	ForwardHorizons []int `yaml:"forward_horizons" envconfig:"FORWARD_HORIZONS" default:"5,10,15,20,30"`
	BaselineDays    int   `yaml:"baseline_days" envconfig:"BASELINE_DAYS" default:"60"`
	RSIPeriod       int   `yaml:"rsi_period" envconfig:"RSI_PERIOD" default:"14"`
	StochPeriod     int   `yaml:"stoch_period" envconfig:"STOCH_PERIOD" default:"14"`

	SimilarityFloor float64 `yaml:"similarity_floor" envconfig:"SIMILARITY_FLOOR" default:"0.8"`
	TopK            int     `yaml:"top_k" envconfig:"TOP_K" default:"5"`
	MinCorrelation  float64 `yaml:"min_correlation" envconfig:"MIN_CORRELATION" default:"0.3"`
	MinPatterns     int     `yaml:"min_patterns" envconfig:"MIN_PATTERNS" default:"3"`

	// Workers bounds the per-instrument analysis fan-out. Zero means one
	// worker per instrument up to the runtime's CPU count.
	Workers int `yaml:"workers" envconfig:"WORKERS" default:"0"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("DIVREC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Resolve relative paths
	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Validate paths
	if err := cfg.ValidatePaths(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	// Server config
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	// ... continue for other fields

	return envConfig
}

// resolvePaths sets up the executable directory and validates paths
func (c *Config) resolvePaths() error {
	// Use centralized paths system to get all paths
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	// Update config with resolved paths from centralized system
	c.Paths.ExecutableDir = paths.ExecutableDir

	return nil
}

// ValidatePaths validates that critical paths exist or can be created
func (c *Config) ValidatePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	// Ensure all required directories exist
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	// Log path resolution for debugging
	paths.LogPathResolution()

	return nil
}

// GetDataDir returns the resolved data directory path
func (c *Config) GetDataDir() string {
	// Use centralized paths system as the single source of truth
	paths, err := GetPaths()
	if err != nil {
		// Fallback to config-based resolution if paths system fails
		if filepath.IsAbs(c.Paths.DataDir) {
			return c.Paths.DataDir
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.DataDir)
	}
	return paths.DataDir
}

// GetReportsDir returns the resolved reports directory path
func (c *Config) GetReportsDir() string {
	// Use centralized paths system as the single source of truth
	paths, err := GetPaths()
	if err != nil {
		// Fallback to config-based resolution if paths system fails
		if filepath.IsAbs(c.Paths.ReportsDir) {
			return c.Paths.ReportsDir
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.ReportsDir)
	}
	return paths.ReportsDir
}

// GetLogsDir returns the resolved logs directory path
func (c *Config) GetLogsDir() string {
	// Use centralized paths system as the single source of truth
	paths, err := GetPaths()
	if err != nil {
		// Fallback to config-based resolution if paths system fails
		if filepath.IsAbs(c.Paths.LogsDir) {
			return c.Paths.LogsDir
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.LogsDir)
	}
	return paths.LogsDir
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	// Logging is always JSON with dual output so log files stay machine-readable
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	if err := c.Analytics.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks the analysis parameters against their documented ranges.
func (a *AnalyticsConfig) validate() error {
	if a.MaxHorizonDays <= 0 {
		return fmt.Errorf("analytics max_horizon_days must be positive, got %d", a.MaxHorizonDays)
	}
	if a.RecoveryThreshold <= 0 || a.RecoveryThreshold > 1.2 {
		return fmt.Errorf("analytics recovery_threshold must be in (0, 1.2], got %v", a.RecoveryThreshold)
	}
	if a.MinSampleSize < 1 {
		return fmt.Errorf("analytics min_sample_size must be at least 1, got %d", a.MinSampleSize)
	}
	for _, q := range a.Percentiles {
		if q < 0 || q > 1 {
			return fmt.Errorf("analytics percentiles must be in [0, 1], got %v", q)
		}
	}
	prev := 0
	for _, h := range a.ForwardHorizons {
		if h <= prev {
			return fmt.Errorf("analytics forward_horizons must be positive and strictly increasing, got %v", a.ForwardHorizons)
		}
		prev = h
	}
	if a.BaselineDays < 1 {
		return fmt.Errorf("analytics baseline_days must be positive, got %d", a.BaselineDays)
	}
	if a.RSIPeriod < 1 || a.StochPeriod < 1 {
		return fmt.Errorf("analytics momentum periods must be positive, got rsi=%d stoch=%d", a.RSIPeriod, a.StochPeriod)
	}
	if a.SimilarityFloor < -1 || a.SimilarityFloor > 1 {
		return fmt.Errorf("analytics similarity_floor must be in [-1, 1], got %v", a.SimilarityFloor)
	}
	if a.TopK <= 0 {
		return fmt.Errorf("analytics top_k must be positive, got %d", a.TopK)
	}
	if a.MinCorrelation < 0 || a.MinCorrelation > 1 {
		return fmt.Errorf("analytics min_correlation must be in [0, 1], got %v", a.MinCorrelation)
	}
	if a.MinPatterns < 1 {
		return fmt.Errorf("analytics min_patterns must be at least 1, got %d", a.MinPatterns)
	}
	if a.Workers < 0 {
		return fmt.Errorf("analytics workers must not be negative, got %d", a.Workers)
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			JobTimeout:      15 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/app.log",
			Development: true,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ReportsDir: "data/reports",
			LogsDir:    "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Analytics: DefaultAnalytics(),
	}
}

// DefaultAnalytics returns the default analysis parameters.
func DefaultAnalytics() AnalyticsConfig {
	return AnalyticsConfig{
		MaxHorizonDays:    30,
		RecoveryThreshold: 1.0,
		MinSampleSize:     20,
		Percentiles:       []float64{0.25, 0.50, 0.75},
		ForwardHorizons:   []int{5, 10, 15, 20, 30},
		BaselineDays:      60,
		RSIPeriod:         14,
		StochPeriod:       14,
		SimilarityFloor:   0.8,
		TopK:              5,
		MinCorrelation:    0.3,
		MinPatterns:       3,
	}
}
