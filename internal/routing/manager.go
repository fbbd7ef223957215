package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// RouteRecord is the decoded result of one successful routing procedure
// call: a server's answer to "who are the routers/readers/writers, and for
// how long is this good."
type RouteRecord struct {
	TTLSeconds int64
	Routers    []string
	Readers    []string
	Writers    []string
}

// RouteProcedureCaller is the one seam between this package and the wire:
// given a router address, call whichever of getRoutingTable/getServers/ROUTE
// fits that router's negotiated protocol version and return its answer.
// Keeping this as an interface (rather than importing internal/bolt and
// internal/pool directly) keeps the rediscovery algorithm below from ever
// needing to know how the probe connection was dialled.
type RouteProcedureCaller interface {
	CallRoute(ctx context.Context, routerAddr, database string, bookmarks []string) (RouteRecord, error)
}

// Resolver expands one configured seed address into one or more concrete
// addresses (DNS, SRV, whatever the driver is configured to use). The
// identity resolver is sufficient when seeds are already host:port pairs.
type Resolver func(seed string) ([]string, error)

// IdentityResolver returns seed unchanged, wrapped in a single-element
// slice — the default when no DNS expansion is configured.
func IdentityResolver(seed string) ([]string, error) { return []string{seed}, nil }

// Manager owns one Table per database name, refreshing each via
// rediscovery on staleness and handing callers the next rotation member.
// Readers observe a consistent table snapshot through the atomic pointer
// itself; replacing the whole table happens under the refresh mutex, and the
// structural map lock only guards looking up or creating a table's slot.
type Manager struct {
	caller  RouteProcedureCaller
	resolve Resolver
	seeds   []string
	now     func() time.Time
	mu      sync.Mutex
	tables  map[string]*atomic.Pointer[Table]
	refresh sync.Mutex // serialises concurrent refreshes across databases; see note on Acquire
}

// NewManager builds a Manager seeded with the driver's configured router
// addresses. resolve may be nil, defaulting to IdentityResolver.
func NewManager(caller RouteProcedureCaller, seeds []string, resolve Resolver) *Manager {
	if resolve == nil {
		resolve = IdentityResolver
	}
	return &Manager{
		caller:  caller,
		resolve: resolve,
		seeds:   seeds,
		now:     time.Now,
		tables:  make(map[string]*atomic.Pointer[Table]),
	}
}

func (m *Manager) tableFor(database string) *atomic.Pointer[Table] {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tables[database]
	if !ok {
		p = &atomic.Pointer[Table]{}
		m.tables[database] = p
	}
	return p
}

// Acquire returns the next address to use for database under mode,
// refreshing the routing table first if it is stale or absent. Callers that
// find a fresh table never block each other; refreshes are serialised
// across all databases by one mutex (see refreshLocked), and concurrent
// callers for the same stale database converge on one refresh, since a
// refresh probes routers one at a time and only one probe sequence should
// be in flight per table at once.
func (m *Manager) Acquire(ctx context.Context, database string, mode AccessMode) (string, error) {
	slot := m.tableFor(database)
	if t := slot.Load(); t != nil && !t.IsStaleFor(mode, m.now()) {
		if addr := t.NextMember(mode); addr != "" {
			return addr, nil
		}
	}

	t, err := m.refreshLocked(ctx, slot, database, mode)
	if err != nil {
		return "", err
	}
	addr := t.NextMember(mode)
	if addr == "" {
		return "", &dberr.ServiceUnavailableError{Message: "routing table has no usable " + mode.String() + " member for database " + database}
	}
	return addr, nil
}

// refreshLocked runs the rediscovery algorithm. The refresh
// mutex is package-wide rather than per-database: rediscovery is rare and
// already network-bound, so serialising it everywhere is simpler than a
// per-database lock map and keeps concurrent refreshes of different
// databases from stampeding the same seed routers simultaneously.
func (m *Manager) refreshLocked(ctx context.Context, slot *atomic.Pointer[Table], database string, mode AccessMode) (*Table, error) {
	m.refresh.Lock()
	defer m.refresh.Unlock()

	// Another goroutine may have refreshed this table while we waited for
	// the lock; re-check before probing routers again.
	if t := slot.Load(); t != nil && !t.IsStaleFor(mode, m.now()) {
		return t, nil
	}

	routers, err := m.seedRouters(slot)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < len(routers); i++ {
		addr := routers[i]
		rec, callErr := m.caller.CallRoute(ctx, addr, database, nil)
		if callErr != nil {
			var cfgErr *dberr.ConfigurationError
			if errors.As(callErr, &cfgErr) {
				return nil, cfgErr
			}
			if t := slot.Load(); t != nil {
				t.ForgetRouter(addr)
			}
			lastErr = callErr
			continue
		}
		if len(rec.Routers) == 0 || len(rec.Readers) == 0 {
			lastErr = &dberr.ProtocolError{Message: "routing procedure returned an empty routers or readers set"}
			continue
		}
		newTable := NewTable(database, rec.Routers, rec.Readers, rec.Writers, rec.TTLSeconds, m.now())
		slot.Store(newTable)
		return newTable, nil
	}

	if lastErr == nil {
		lastErr = &dberr.ServiceUnavailableError{Message: "no seed routers configured for database " + database}
	}
	return nil, &dberr.ServiceUnavailableError{Message: "rediscovery exhausted all routers", Cause: lastErr}
}

// seedRouters returns the prior table's routers if any remain, else the
// configured seed addresses resolved through m.resolve.
func (m *Manager) seedRouters(slot *atomic.Pointer[Table]) ([]string, error) {
	if t := slot.Load(); t != nil {
		if routers := t.Routers.List(); len(routers) > 0 {
			return routers, nil
		}
	}
	var out []string
	for _, seed := range m.seeds {
		expanded, err := m.resolve(seed)
		if err != nil {
			return nil, &dberr.ServiceUnavailableError{Message: "failed to resolve seed router " + seed, Cause: err}
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// Forget removes addr from the readers/writers of database's table, if a
// table exists yet. A no-op when no table exists or addr is not present —
// calling it twice for the same address is idempotent.
func (m *Manager) Forget(database, addr string) {
	if t := m.tableFor(database).Load(); t != nil {
		t.Forget(addr)
	}
}

// ForgetWriter removes addr from database's writers only.
func (m *Manager) ForgetWriter(database, addr string) {
	if t := m.tableFor(database).Load(); t != nil {
		t.ForgetWriter(addr)
	}
}

// ForgetRouter removes addr from database's routers only.
func (m *Manager) ForgetRouter(database, addr string) {
	if t := m.tableFor(database).Load(); t != nil {
		t.ForgetRouter(addr)
	}
}
