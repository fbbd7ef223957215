package boltdriver

import (
	"sync/atomic"

	"github.com/graphwire/bolt-go-driver/internal/pool"
)

// sessionStats accumulates driver-wide session/transaction counters with
// plain atomic counters: each event increments one field with a single
// atomic op, and snapshot copies them out under no lock at all since every
// field is independently atomic.
type sessionStats struct {
	sessionsOpened       atomic.Uint64
	transactionsBegun    atomic.Uint64
	transactionsCommitted atomic.Uint64
	transactionsRolledBack atomic.Uint64
	retries              atomic.Uint64
}

func (s *sessionStats) recordSessionOpened()       { s.sessionsOpened.Add(1) }
func (s *sessionStats) recordTransactionBegun()    { s.transactionsBegun.Add(1) }
func (s *sessionStats) recordTransactionCommitted() { s.transactionsCommitted.Add(1) }
func (s *sessionStats) recordTransactionRolledBack() { s.transactionsRolledBack.Add(1) }
func (s *sessionStats) recordRetry()               { s.retries.Add(1) }

// ClientStats is a point-in-time snapshot of session/transaction activity
// across every session this Driver has opened.
type ClientStats struct {
	SessionsOpened        uint64
	TransactionsBegun     uint64
	TransactionsCommitted uint64
	TransactionsRolledBack uint64
	Retries               uint64
}

func (s *sessionStats) snapshot() ClientStats {
	return ClientStats{
		SessionsOpened:         s.sessionsOpened.Load(),
		TransactionsBegun:      s.transactionsBegun.Load(),
		TransactionsCommitted:  s.transactionsCommitted.Load(),
		TransactionsRolledBack: s.transactionsRolledBack.Load(),
		Retries:                s.retries.Load(),
	}
}

// Stats is a point-in-time snapshot of a Driver's pool and session
// activity, keyed by address for the per-address pool figures.
type Stats struct {
	Client ClientStats
	Pools  map[string]pool.Stats
}
