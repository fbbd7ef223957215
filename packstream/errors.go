package packstream

import "fmt"

// DecodingError is returned for any malformed, truncated, or out-of-range
// read: unknown marker bytes, a get/put past the buffer's length, or a
// container size field inconsistent with the bytes actually available.
type DecodingError struct {
	Message string
}

func (e *DecodingError) Error() string { return "packstream: decoding error: " + e.Message }

func newDecodingError(format string, args ...any) *DecodingError {
	return &DecodingError{Message: fmt.Sprintf(format, args...)}
}

// EncodingError is returned when a value cannot be represented on the wire:
// an integer outside int64, or a container whose size exceeds the protocol's
// field-count limits.
type EncodingError struct {
	Message string
}

func (e *EncodingError) Error() string { return "packstream: encoding error: " + e.Message }

func newEncodingError(format string, args ...any) *EncodingError {
	return &EncodingError{Message: fmt.Sprintf(format, args...)}
}
