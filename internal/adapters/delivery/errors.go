package delivery

import "errors"

// Sentinel kinds for delivery queue errors.
var (
	ErrNoRecipients        = errors.New("emergency has no recipients")
	ErrUnknownNotification = errors.New("unknown notification")
)
