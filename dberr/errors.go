// Package dberr classifies the errors this driver can return so that callers,
// the connection pool, and the routing layer can react without string-matching
// messages.
package dberr

import (
	"errors"
	"fmt"
	"strings"
)

// Classified is implemented by every error type this driver returns from the
// network or protocol layers. Code is the dot-delimited wire classifier
// (e.g. "Neo.ClientError.Security.Unauthorized"); Retryable tells a retry
// executor whether reissuing the work that produced this error is safe.
type Classified interface {
	error
	Code() string
	Retryable() bool
}

// WireError is a failure reported by the server itself: a FAILURE message
// whose metadata carries `code` and `message`.
type WireError struct {
	code    string
	Message string
}

func NewWireError(code, message string) *WireError {
	return &WireError{code: code, Message: message}
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.Message)
}

func (e *WireError) Code() string { return e.code }

// Retryable reports whether the server classified this as a transient
// condition. Two codes are explicitly excluded even though they carry the
// TransientError classification: Terminated and LockClientStopped, both of
// which mean the server will never complete the work no matter how many
// times it is retried.
func (e *WireError) Retryable() bool {
	if !strings.Contains(e.code, ".TransientError.") {
		return false
	}
	return !strings.HasSuffix(e.code, ".Terminated") && !strings.HasSuffix(e.code, ".LockClientStopped")
}

// ServiceUnavailableError means no member of the cluster (or the single
// configured server) could serve the request right now.
type ServiceUnavailableError struct {
	Message string
	Cause   error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("service unavailable: %s: %v", e.Message, e.Cause)
	}
	return "service unavailable: " + e.Message
}

func (e *ServiceUnavailableError) Unwrap() error  { return e.Cause }
func (e *ServiceUnavailableError) Code() string   { return "ServiceUnavailable" }
func (e *ServiceUnavailableError) Retryable() bool { return true }

// SessionExpiredError marks a connection that died mid-use; the routing
// layer must forget the address and the caller's session must be retried
// against a different member.
type SessionExpiredError struct {
	Message string
	Cause   error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session expired: %s: %v", e.Message, e.Cause)
	}
	return "session expired: " + e.Message
}

func (e *SessionExpiredError) Unwrap() error  { return e.Cause }
func (e *SessionExpiredError) Code() string   { return "SessionExpired" }
func (e *SessionExpiredError) Retryable() bool { return true }

// TransientError wraps a server TransientError that is safe to retry.
type TransientError struct {
	*WireError
}

func NewTransientError(code, message string) *TransientError {
	return &TransientError{WireError: NewWireError(code, message)}
}

// NotALeaderError (and ForbiddenOnReadOnlyDatabase) mean a write landed on a
// member that cannot currently accept writes. The routing layer forgets the
// target as a writer; the retry executor retries against a refreshed table.
type NotALeaderError struct {
	*WireError
}

func (e *NotALeaderError) Retryable() bool { return true }

// AuthenticationError is fatal to the connection attempt and is never
// retried: a fresh connection with different credentials might succeed, but
// retrying the same ones will not.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string       { return "authentication failed: " + e.Message }
func (e *AuthenticationError) Code() string        { return "Neo.ClientError.Security.Unauthorized" }
func (e *AuthenticationError) Retryable() bool     { return false }

// ProtocolError indicates the wire stream itself could not be parsed, or a
// magic/version mismatch during handshake. Always fatal to the connection.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Cause)
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error  { return e.Cause }
func (e *ProtocolError) Code() string   { return "ProtocolError" }
func (e *ProtocolError) Retryable() bool { return false }

// ClientError is a user-input problem (bad bookmark, unknown procedure,
// malformed statement) that the server or driver rejected outright.
type ClientError struct {
	*WireError
}

func (e *ClientError) Retryable() bool { return false }

// ConfigurationError is raised when rediscovery hits a condition that no
// amount of retrying will fix: missing routing procedure, or the server
// flatly refused authentication during a router probe.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error   { return e.Cause }
func (e *ConfigurationError) Code() string    { return "ConfigurationError" }
func (e *ConfigurationError) Retryable() bool { return false }

// Classify turns a raw WireError into the most specific sentinel type based
// on its code.
func Classify(code, message string) error {
	switch {
	case code == "Neo.ClientError.Security.Unauthorized":
		return &AuthenticationError{Message: message}
	case code == "Neo.ClientError.Cluster.NotALeader" || code == "Neo.ClientError.General.ForbiddenOnReadOnlyDatabase":
		return &NotALeaderError{WireError: NewWireError(code, message)}
	case code == "ServiceUnavailable" || code == "Neo.TransientError.General.DatabaseUnavailable":
		return &ServiceUnavailableError{Message: message}
	case strings.Contains(code, ".TransientError.") &&
		!strings.HasSuffix(code, ".Terminated") && !strings.HasSuffix(code, ".LockClientStopped"):
		return NewTransientError(code, message)
	case strings.Contains(code, ".ClientError."):
		return &ClientError{WireError: NewWireError(code, message)}
	default:
		return NewWireError(code, message)
	}
}

// ClassifyTransportError re-tags a raw transport-level failure — a closed
// socket, a dropped read, a failed write — as a SessionExpiredError, so the
// routing layer forgets the address and the caller's session retries
// against a different member instead of seeing a bare net.OpError/io.EOF.
func ClassifyTransportError(message string, cause error) error {
	return &SessionExpiredError{Message: message, Cause: cause}
}

// IsRetryable reports whether retrying the operation that produced err is
// expected to make progress: availability errors, session expiry, and
// server-classified transient errors (minus the two excluded codes).
func IsRetryable(err error) bool {
	var c Classified
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return false
}

// IsAvailabilityError reports whether err means a member (or the whole
// cluster) is currently unreachable — the condition under which the
// routing layer forgets the offending address.
func IsAvailabilityError(err error) bool {
	var su *ServiceUnavailableError
	var se *SessionExpiredError
	return errors.As(err, &su) || errors.As(err, &se)
}

// IsWriteFailure reports whether err indicates the target refused a write
// because it is not (or no longer) the leader/writable member.
func IsWriteFailure(err error) bool {
	var e *NotALeaderError
	return errors.As(err, &e)
}

// AsCode extracts the dot-delimited classifier from any Classified error,
// or "" if err does not implement the interface.
func AsCode(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}
