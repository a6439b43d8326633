package validation

import "errors"

// ErrPayloadTooLarge is returned when a file exceeds the upload limit
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrEmptyFile is returned for zero-byte uploads
var ErrEmptyFile = errors.New("file is empty")

// ErrInvalidRequest wraps struct validation failures
var ErrInvalidRequest = errors.New("invalid request")
