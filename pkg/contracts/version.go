// Package contracts defines the shared API contracts: version metadata,
// outbound domain records, request DTOs, and websocket event shapes.
package contracts

import "fmt"

// Version is the release version of the analytics engine.
const Version = "1.0.0"

// GetVersionString returns the product signature used in report headers.
func GetVersionString() string {
	return fmt.Sprintf("Dividend Recovery Analytics v%s", Version)
}
