// Package http implements the HTTP handlers for the dividend recovery
// analytics service. It is a thin layer between transport and the service
// packages: handlers parse and validate requests, delegate to services, and
// render responses.
//
// # Handler Structure
//
// Each handler owns a service interface, a component logger, and the shared
// RFC 7807 error handler:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    // 1. Parse and validate the request
//	    // 2. Call the service layer
//	    // 3. Render the response, or hand the error to the error handler
//	}
//
// # Error Handling
//
// Service sentinel errors are translated to API errors with the right HTTP
// status before reaching the central handler; engine errors (validation,
// insufficient data, insufficient sample) and context errors carry their own
// mapping there. All error responses follow RFC 7807 problem details:
//
//	{
//	    "type": "/errors/instrument_not_found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "instrument not found in the loaded universe"
//	}
//
// # Routes
//
// Handlers expose chi sub-routers via Routes() and are mounted by the
// application container under /api/v1. The Prometheus scrape endpoint and
// the websocket progress endpoint are mounted at the root.
package http
