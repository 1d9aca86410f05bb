package detector

import "errors"

// Sentinel kinds for detector errors.
var (
	ErrInvalidRules = errors.New("invalid detection rules")
)
