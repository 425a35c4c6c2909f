// Package app provides application initialization and lifecycle management
// for the divrec server. It wires configuration, logging, OpenTelemetry, the
// websocket hub, the analytics services and the HTTP transport together at
// startup and handles graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and observability
//	3. Start the websocket hub
//	4. Initialize the analytics and health services
//	5. Set up HTTP handlers and middleware
//	6. Configure and start the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM signals to ensure:
//
//	- Active requests are completed
//	- Running analysis jobs are cancelled
//	- WebSocket connections are closed cleanly
//	- Final telemetry is flushed
//
// # Error Handling
//
// All initialization errors are returned to the caller. The app never calls
// os.Exit() directly, so main controls the exit process.
package app
