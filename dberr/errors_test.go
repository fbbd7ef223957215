package dberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTransportErrorWrapsSessionExpired(t *testing.T) {
	cause := errors.New("eof")
	err := ClassifyTransportError("connection closed", cause)

	var se *SessionExpiredError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "connection closed", se.Message)
	assert.Equal(t, cause, se.Cause)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsAvailabilityError(err))
}

func TestClassifyReturnsSentinelTypes(t *testing.T) {
	assert.IsType(t, &AuthenticationError{}, Classify("Neo.ClientError.Security.Unauthorized", "bad creds"))
	assert.IsType(t, &NotALeaderError{}, Classify("Neo.ClientError.Cluster.NotALeader", "not leader"))
	assert.IsType(t, &ServiceUnavailableError{}, Classify("ServiceUnavailable", "down"))
	assert.IsType(t, &TransientError{}, Classify("Neo.TransientError.Transaction.DeadlockDetected", "deadlock"))
	assert.IsType(t, &ClientError{}, Classify("Neo.ClientError.Statement.SyntaxError", "bad syntax"))
	assert.IsType(t, &WireError{}, Classify("Neo.DatabaseError.General.UnknownError", "boom"))
}

func TestTransientErrorExcludedCodesAreNotRetryable(t *testing.T) {
	terminated := NewTransientError("Neo.TransientError.Transaction.Terminated", "terminated")
	assert.False(t, terminated.Retryable())

	lockStopped := NewTransientError("Neo.TransientError.Transaction.LockClientStopped", "stopped")
	assert.False(t, lockStopped.Retryable())

	deadlock := NewTransientError("Neo.TransientError.Transaction.DeadlockDetected", "deadlock")
	assert.True(t, deadlock.Retryable())
}
