package contract

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrOrderNotFound   = errors.New("order not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrToolFailed      = errors.New("tool execution failed")
)
