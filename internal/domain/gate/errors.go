package gate

import "errors"

// Sentinel kinds for gate errors.
var (
	ErrNoPendingAlert = errors.New("no pending alert")
)
