package audit

import "errors"

// Audit trail errors for append-only sinks.
var (
	// ErrDuplicateKey is returned when a record with the same signal ID
	// was already written. The trail is append-only and never updated.
	ErrDuplicateKey = errors.New("duplicate key: audit trail is append-only")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid audit record")
)
