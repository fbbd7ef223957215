package boltdriver

import "github.com/graphwire/bolt-go-driver/dberr"

// ClassifyTransportError re-tags a raw transport-level error (a closed
// socket, a dropped read, a failed write) as a SessionExpiredError, the
// class a session must retry against a fresh connection rather than
// surface verbatim. internal/transport's TCPChannel and WebSocketChannel
// call dberr.ClassifyTransportError directly (importing this package from
// there would cycle back through internal/transport); this is the same
// function, exposed here with a generic message for callers outside the
// transport layer.
func ClassifyTransportError(err error) error {
	return dberr.ClassifyTransportError("connection closed", err)
}

// IsRetryable reports whether retrying the operation that produced err is
// expected to make progress. It is re-exported here so callers only need
// to import the root package, not dberr, to drive their own retry loops.
func IsRetryable(err error) bool {
	return dberr.IsRetryable(err)
}
