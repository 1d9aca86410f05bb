package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidContact = errors.New("invalid contact")
)
