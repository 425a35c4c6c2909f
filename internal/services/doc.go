// Package services implements the business logic layer of the analytics
// application. It provides a clean separation between HTTP handlers and the
// recovery/pattern engines, ensuring that orchestration rules are
// centralized and testable.
//
// # Architecture
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Immutable snapshots for safe concurrent reads
//	5. Domain-focused methods that encapsulate business rules
//
// # Service Layer Responsibilities
//
// The service layer is responsible for:
//
//	- Loading and snapshotting the price/event universe
//	- Fanning analysis out across instruments with bounded parallelism
//	- Mapping engine results to outbound contract types
//	- Cross-cutting concerns (logging, metrics)
//	- Error handling and transformation
//	- Report export coordination
//
// # Common Service Pattern
//
// Services typically follow this structure:
//
//	type ServiceName struct {
//	    cfg    config.AnalyticsConfig
//	    paths  *config.Paths
//	    logger *slog.Logger
//	}
//
//	func NewServiceName(cfg config.AnalyticsConfig, paths *config.Paths, logger *slog.Logger) *ServiceName {
//	    return &ServiceName{
//	        cfg:    cfg,
//	        paths:  paths,
//	        logger: logger,
//	    }
//	}
//
//	func (s *ServiceName) BusinessOperation(ctx context.Context, input Input) (*Output, error) {
//	    // Validate input
//	    if err := input.Validate(); err != nil {
//	        return nil, fmt.Errorf("validation failed: %w", err)
//	    }
//
//	    // Execute business logic
//	    result, err := s.engineCall(ctx, input)
//	    if err != nil {
//	        s.logger.ErrorContext(ctx, "operation failed",
//	            "error", err,
//	            "input", input,
//	        )
//	        return nil, fmt.Errorf("operation failed: %w", err)
//	    }
//
//	    return result, nil
//	}
//
// # Available Services
//
// The package provides these core services:
//
//	- AnalyticsService: loads the universe, runs recovery detection,
//	  pattern correlation, and similarity search, and manages async
//	  full-universe analysis jobs
//	- HealthService: provides system health checks
//
// # Error Handling
//
// Services return sentinel errors (ErrInstrumentNotFound, ErrJobNotFound,
// ...) and pass engine errors through unwrapped so handlers can transform
// them:
//
//	- recovery.ValidationError for invalid parameters
//	- recovery.InsufficientSampleError for populations below the minimum
//	- pattern.UndefinedSimilarityError for targets with too few dimensions
//
// # Testing
//
// Services are tested against real CSV fixtures in temp directories plus a
// mocked websocket hub:
//
//	hub := &MockWebSocketHub{}
//	hub.On("Broadcast", mock.Anything, mock.Anything)
//	svc, err := NewAnalyticsService(cfg, paths, hub, nil, logger)
package services
