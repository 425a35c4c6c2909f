package http

import (
	"errors"
	"net/http"

	apierrors "divrec/internal/errors"
	"divrec/internal/services"
)

// serviceError translates service sentinel errors into API errors with the
// right HTTP status. Anything else passes through unchanged so the central
// error handler can apply its own mapping (engine validation errors,
// insufficient data/sample errors, context cancellation).
func serviceError(err error) error {
	switch {
	case errors.Is(err, services.ErrUniverseNotLoaded):
		return apierrors.New(http.StatusConflict, "UNIVERSE_NOT_LOADED",
			"no universe loaded; load the price and event data first")
	case errors.Is(err, services.ErrNoInstrumentsFound):
		return apierrors.New(http.StatusNotFound, "NO_INSTRUMENTS_FOUND",
			"no instruments found in the loaded universe")
	case errors.Is(err, services.ErrInstrumentNotFound):
		return apierrors.New(http.StatusNotFound, "INSTRUMENT_NOT_FOUND",
			"instrument not found in the loaded universe")
	case errors.Is(err, services.ErrInstrumentInvalid):
		return apierrors.New(http.StatusUnprocessableEntity, "INSTRUMENT_INVALID",
			"instrument failed data quality checks")
	case errors.Is(err, services.ErrNoEventsFound):
		return apierrors.New(http.StatusNotFound, "NO_EVENTS_FOUND",
			"no distribution events found")
	case errors.Is(err, services.ErrEventNotFound):
		return apierrors.New(http.StatusNotFound, "EVENT_NOT_FOUND",
			"no distribution event on the requested date")
	case errors.Is(err, services.ErrJobNotFound):
		return apierrors.New(http.StatusNotFound, "JOB_NOT_FOUND",
			"analysis job not found")
	case errors.Is(err, services.ErrJobNotRunning):
		return apierrors.New(http.StatusConflict, "JOB_NOT_RUNNING",
			"analysis job already finished")
	default:
		return err
	}
}
