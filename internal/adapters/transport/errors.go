package transport

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrSendFailed    = errors.New("notification send failed")
	ErrEncodePayload = errors.New("encode notification payload")
)
