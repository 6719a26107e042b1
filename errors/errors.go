// Package errors defines the sentinel errors shared across the server.
// Handlers compare against these with errors.Is to decide how a failure
// is reported to the client; the raw cause is only ever logged.
package errors

import "fmt"

var (
	ErrStoreUnavailable = fmt.Errorf("news store unavailable")
	ErrNotFound         = fmt.Errorf("news item not found")
	ErrAuthRequired     = fmt.Errorf("authentication required")
	ErrUnauthorized     = fmt.Errorf("not the author of this item")
	ErrValidation       = fmt.Errorf("invalid command")
	ErrUnknownKind      = fmt.Errorf("unknown command kind")
	ErrMalformedFrame   = fmt.Errorf("malformed frame")
	ErrConnClosed       = fmt.Errorf("connection closed")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)
