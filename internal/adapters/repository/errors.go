package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("notification not found")
	ErrEncode   = errors.New("encode notification")
	ErrStore    = errors.New("notification store")
)
