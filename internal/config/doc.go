// Package config provides centralized configuration management for the divrec
// system. It handles loading configuration from multiple sources, validation,
// and provides a type-safe API for accessing configuration values throughout
// the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration files (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern DIVREC_* for namespacing:
//
//	DIVREC_SERVER_PORT=8080
//	DIVREC_LOGGING_LEVEL=info
//	DIVREC_ANALYTICS_MAX_HORIZON_DAYS=30
//	DIVREC_ANALYTICS_RECOVERY_THRESHOLD=1.0
//	DIVREC_ANALYTICS_MIN_SAMPLE_SIZE=20
//
// # Analysis Parameters
//
// The Analytics block carries every tunable of the engine: the recovery
// detection horizon and threshold, aggregation sample floor and percentiles,
// feature-extraction horizons and baselines, and similarity-search bounds.
// Services convert it into engine parameter structs and pass those by value
// into each call; the engine packages never read configuration themselves.
//
// # Path Management
//
// The package provides centralized path management through the Paths type,
// which handles all file system paths relative to the executable location:
//
//	paths, err := config.GetPaths()
//	pricePath := paths.GetPriceCSVPath("BBOB")
//	reportPath := paths.GetReportPath("recovery_statistics.csv")
//
// # Validation
//
// All configuration is validated at load time to ensure:
//
//	- Required fields are present
//	- Values are within acceptable ranges
//	- File paths are accessible
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
