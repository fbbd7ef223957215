package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStaleForAllFourClauses(t *testing.T) {
	now := time.Now()

	fresh := NewTable("neo4j", []string{"r1"}, []string{"a"}, []string{"w1"}, 300, now)
	assert.False(t, fresh.IsStaleFor(Read, now))
	assert.False(t, fresh.IsStaleFor(Write, now))

	expired := NewTable("neo4j", []string{"r1"}, []string{"a"}, []string{"w1"}, 300, now)
	assert.True(t, expired.IsStaleFor(Read, now.Add(301*time.Second)), "expiresAt passed")

	noRouters := NewTable("neo4j", nil, []string{"a"}, []string{"w1"}, 300, now)
	assert.True(t, noRouters.IsStaleFor(Read, now), "empty routers is stale for any role")
	assert.True(t, noRouters.IsStaleFor(Write, now))

	noReaders := NewTable("neo4j", []string{"r1"}, nil, []string{"w1"}, 300, now)
	assert.True(t, noReaders.IsStaleFor(Read, now), "empty readers is stale only for read")
	assert.False(t, noReaders.IsStaleFor(Write, now))

	noWriters := NewTable("neo4j", []string{"r1"}, []string{"a"}, nil, 300, now)
	assert.True(t, noWriters.IsStaleFor(Write, now), "empty writers is stale only for write")
	assert.False(t, noWriters.IsStaleFor(Read, now))
}

func TestTTLNonPositiveIsImmediatelyStale(t *testing.T) {
	now := time.Now()
	table := NewTable("neo4j", []string{"r1"}, []string{"a"}, []string{"w1"}, 0, now)
	assert.True(t, table.IsStaleFor(Read, now))

	negative := NewTable("neo4j", []string{"r1"}, []string{"a"}, []string{"w1"}, -5, now)
	assert.True(t, negative.IsStaleFor(Read, now))
}

func TestTTLOverflowSaturatesAtMaxExpiry(t *testing.T) {
	now := time.Now()
	table := NewTable("neo4j", []string{"r1"}, []string{"a"}, []string{"w1"}, 1<<62, now)
	assert.False(t, table.IsStaleFor(Read, now.Add(1000*365*24*time.Hour)), "saturated expiry must stay far in the future")
}

func TestForgetRemovesFromReadersAndWritersOnly(t *testing.T) {
	now := time.Now()
	table := NewTable("neo4j", []string{"r1"}, []string{"a", "b"}, []string{"a"}, 300, now)

	table.Forget("a")
	assert.Equal(t, []string{"b"}, table.Readers.List())
	assert.Empty(t, table.Writers.List())
	assert.Equal(t, []string{"r1"}, table.Routers.List(), "forget never touches routers")

	// Idempotent: applying it again changes nothing further.
	table.Forget("a")
	assert.Equal(t, []string{"b"}, table.Readers.List())
	assert.Empty(t, table.Writers.List())
}

func TestForgetRouterAndForgetWriterAreScoped(t *testing.T) {
	now := time.Now()
	table := NewTable("neo4j", []string{"r1", "r2"}, []string{"a"}, []string{"a"}, 300, now)

	table.ForgetWriter("a")
	assert.Empty(t, table.Writers.List())
	assert.Equal(t, []string{"a"}, table.Readers.List(), "forgetWriter leaves readers untouched")

	table.ForgetRouter("r1")
	assert.Equal(t, []string{"r2"}, table.Routers.List())
}

func TestOrderedSetRotatesInInsertionOrder(t *testing.T) {
	s := newOrderedSet([]string{"a", "b", "c"})
	require.Equal(t, "a", s.Next())
	require.Equal(t, "b", s.Next())
	require.Equal(t, "c", s.Next())
	require.Equal(t, "a", s.Next(), "rotation wraps around")
}

func TestOrderedSetNextOnEmptyReturnsEmptyString(t *testing.T) {
	s := newOrderedSet(nil)
	assert.Equal(t, "", s.Next())
}
