package services

import "errors"

// Analytics service errors
var (
	// Universe errors
	ErrUniverseNotLoaded  = errors.New("universe not loaded")
	ErrNoInstrumentsFound = errors.New("no instruments found")

	// Instrument errors
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrInstrumentInvalid  = errors.New("instrument failed data quality checks")
	ErrNoEventsFound      = errors.New("no distribution events found")
	ErrEventNotFound      = errors.New("distribution event not found")

	// Job errors
	ErrJobNotFound   = errors.New("analysis job not found")
	ErrJobNotRunning = errors.New("analysis job not running")

	// WebSocket errors
	ErrWebSocketUpgrade = errors.New("websocket upgrade failed")
	ErrWebSocketClosed  = errors.New("websocket connection closed")

	// General errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
