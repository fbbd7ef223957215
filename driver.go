package boltdriver

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/graphwire/bolt-go-driver/dberr"
	"github.com/graphwire/bolt-go-driver/internal/bolt"
	"github.com/graphwire/bolt-go-driver/internal/pool"
	"github.com/graphwire/bolt-go-driver/internal/routing"
	"github.com/graphwire/bolt-go-driver/internal/transport"
	"github.com/graphwire/bolt-go-driver/knownhosts"
	"github.com/graphwire/bolt-go-driver/log"
)

// Classified re-exports dberr.Classified so callers never need to import
// the dberr package directly to type-switch on a returned error.
type Classified = dberr.Classified

// BasicAuth builds the "basic" auth token HELLO/INIT expects.
func BasicAuth(principal, credentials, realm string) map[string]any {
	token := map[string]any{
		"scheme":      "basic",
		"principal":   principal,
		"credentials": credentials,
	}
	if realm != "" {
		token["realm"] = realm
	}
	return token
}

// Driver is the top-level facade: one Driver per target cluster (or single
// server), holding one connection pool per address plus, in routing mode,
// the routing table manager that decides which address a session should
// use. It never dials eagerly; the first session to need a given address
// causes its pool to be created.
type Driver struct {
	target    Target
	config    Config
	authToken map[string]any
	tlsConfig *tls.Config

	mu    sync.Mutex
	pools map[string]*pool.AddressPool

	routingMgr *routing.Manager
	stats      sessionStats
	closed     atomic.Bool
}

// NewDriver parses target, validates the config, and returns a Driver ready
// to open sessions. It does not connect to anything yet.
func NewDriver(targetURL string, authToken map[string]any, opts ...Option) (*Driver, error) {
	target, err := ParseTarget(targetURL)
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(opts...)
	if target.Encrypted {
		cfg.Encrypted = true
		cfg.Trust = target.Trust
	}

	var knownHosts *knownhosts.Store
	if cfg.Trust == transport.TrustOnFirstUse {
		path, err := cfg.resolveKnownHosts()
		if err != nil {
			return nil, err
		}
		knownHosts = knownhosts.NewStore(path)
	}

	tlsCfg, err := (transport.TLSConfig{
		Strategy:         cfg.Trust,
		TrustedCertPaths: cfg.TrustedCertificates,
		KnownHosts:       knownHosts,
		ServerName:       target.Host,
		Port:             target.Port,
	}).Build()
	if err != nil {
		return nil, err
	}
	if !cfg.Encrypted {
		tlsCfg = nil
	}

	if len(cfg.RoutingContext) == 0 && len(target.RoutingContext) > 0 {
		cfg.RoutingContext = target.RoutingContext
	}

	d := &Driver{
		target:    target,
		config:    cfg,
		authToken: authToken,
		tlsConfig: tlsCfg,
		pools:     make(map[string]*pool.AddressPool),
	}

	if target.Routing {
		d.routingMgr = routing.NewManager(d, []string{target.Address()}, routing.IdentityResolver)
	}
	return d, nil
}

func (d *Driver) logger() log.Logger {
	if d.config.Logger != nil {
		return d.config.Logger
	}
	return log.Noop{}
}

// dial opens, handshakes, and authenticates a fresh connection to addr.
// This is the Dialer every address's pool.AddressPool uses to grow itself.
func (d *Driver) dial(ctx context.Context, addr string) (*bolt.Connection, error) {
	dialAddr := addr
	if d.config.Transport == transport.KindWebSocket {
		if d.tlsConfig != nil {
			dialAddr = "wss://" + addr
		} else {
			dialAddr = "ws://" + addr
		}
	}
	ch, err := transport.Dial(ctx, d.config.Transport, dialAddr, d.tlsConfig)
	if err != nil {
		return nil, &dberr.ServiceUnavailableError{Message: "failed to connect to " + addr, Cause: err}
	}

	conn := bolt.NewConnection(ch, addr, d.logger(), d.config.BoltLog)
	if _, err := conn.Handshake(ctx, bolt.DefaultProposals); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(ctx, d.config.UserAgent, d.authToken, d.config.RoutingContext); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// addressPool returns (creating if necessary) the pool for addr.
func (d *Driver) addressPool(addr string) *pool.AddressPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ap, ok := d.pools[addr]; ok {
		return ap
	}
	ap, err := pool.NewAddressPool(addr, func(ctx context.Context) (*bolt.Connection, error) {
		return d.dial(ctx, addr)
	}, d.config.poolOptions())
	if err != nil {
		// NewAddressPool only fails if puddle rejects the config (e.g. a
		// non-positive max size); fall back to an unbounded-in-practice
		// pool rather than letting a misconfiguration panic at acquire time.
		ap, _ = pool.NewAddressPool(addr, func(ctx context.Context) (*bolt.Connection, error) {
			return d.dial(ctx, addr)
		}, pool.Options{MaxSize: 100})
	}
	d.pools[addr] = ap
	return ap
}

// resolveAddress picks which address a session should use for database
// under mode: the single configured target in direct mode, or the routing
// manager's next rotation member in routing mode.
func (d *Driver) resolveAddress(ctx context.Context, database string, mode routing.AccessMode) (string, error) {
	if d.routingMgr == nil {
		return d.target.Address(), nil
	}
	return d.routingMgr.Acquire(ctx, database, mode)
}

// withConnection acquires a connection for database/mode, runs fn, and
// forgets the address from the routing table (if routing) on an
// availability or write-failure error before propagating fn's error.
func (d *Driver) withConnection(ctx context.Context, database string, mode routing.AccessMode, fn func(*bolt.Connection) error) error {
	addr, err := d.resolveAddress(ctx, database, mode)
	if err != nil {
		return err
	}
	err = d.addressPool(addr).WithConnection(ctx, fn)
	if err != nil && d.routingMgr != nil {
		switch {
		case dberr.IsAvailabilityError(err):
			d.routingMgr.Forget(database, addr)
		case dberr.IsWriteFailure(err):
			d.routingMgr.ForgetWriter(database, addr)
		}
	}
	return err
}

// acquireConnection resolves an address for database/mode and borrows a
// connection from its pool. Callers that hold the connection across
// several wire round trips (a Session's run or an explicit Transaction)
// use this instead of withConnection, releasing it themselves via
// releaseConnection once they are done.
func (d *Driver) acquireConnection(ctx context.Context, database string, mode routing.AccessMode) (pool.Resource, string, error) {
	addr, err := d.resolveAddress(ctx, database, mode)
	if err != nil {
		return nil, "", err
	}
	res, err := d.addressPool(addr).Acquire(ctx)
	if err != nil {
		return nil, "", err
	}
	return res, addr, nil
}

// releaseConnection returns res to its pool (or destroys it if broken) and,
// in routing mode, forgets addr from database's table when opErr classifies
// as an availability or write-failure error.
func (d *Driver) releaseConnection(res pool.Resource, database, addr string, opErr error) {
	if res.Value().IsBroken() {
		res.Destroy()
	} else {
		res.Release()
	}
	if opErr == nil || d.routingMgr == nil {
		return
	}
	switch {
	case dberr.IsAvailabilityError(opErr):
		d.routingMgr.Forget(database, addr)
	case dberr.IsWriteFailure(opErr):
		d.routingMgr.ForgetWriter(database, addr)
	}
}

// CallRoute implements routing.RouteProcedureCaller: it dials a transient
// connection to routerAddr and asks it for the routing table, using the
// V4.3+ ROUTE message when the negotiated version supports it and falling
// back to the routing procedure as an ordinary query otherwise.
func (d *Driver) CallRoute(ctx context.Context, routerAddr, database string, bookmarks []string) (routing.RouteRecord, error) {
	conn, err := d.dial(ctx, routerAddr)
	if err != nil {
		return routing.RouteRecord{}, err
	}
	defer conn.Close()

	var rec routing.RouteRecord
	var callErr error
	done := make(chan struct{})

	obs := bolt.FuncObserver{
		Next: func(fields []any) {
			rec, callErr = decodeRouteRecord(fields)
		},
		Completed: func(map[string]any) { close(done) },
		Err: func(e error) { callErr = e; close(done) },
	}

	adapter := conn.Adapter()
	if adapter.Version().AtLeast(4, 3) {
		err = conn.Route(d.config.RoutingContext, bookmarks, database, obs)
	} else {
		err = d.callRoutingProcedure(conn, database, obs)
	}
	if err != nil {
		return routing.RouteRecord{}, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return routing.RouteRecord{}, ctx.Err()
	}
	if callErr != nil {
		return routing.RouteRecord{}, callErr
	}
	return rec, nil
}

func (d *Driver) callRoutingProcedure(conn *bolt.Connection, database string, obs bolt.Observer) error {
	params := map[string]any{"context": routingContextToAny(d.config.RoutingContext)}
	statement := "CALL dbms.cluster.routing.getRoutingTable($context)"
	if database != "" {
		params["database"] = database
		statement = "CALL dbms.cluster.routing.getRoutingTable($context, $database)"
	}
	return conn.Run(statement, params, bolt.TxMetadata{}, obs)
}

func routingContextToAny(rc map[string]string) map[string]any {
	out := make(map[string]any, len(rc))
	for k, v := range rc {
		out[k] = v
	}
	return out
}

// decodeRouteRecord turns one routing-procedure RECORD's fields ([ttl,
// servers] for the procedure form, or the ROUTE message's single "rt" map
// for the wire form) into a RouteRecord.
func decodeRouteRecord(fields []any) (routing.RouteRecord, error) {
	if len(fields) == 1 {
		if rt, ok := fields[0].(map[string]any); ok {
			return routeRecordFromMap(rt)
		}
	}
	if len(fields) != 2 {
		return routing.RouteRecord{}, &dberr.ProtocolError{Message: "routing record did not carry exactly ttl and servers"}
	}
	ttl, servers := fields[0], fields[1]
	return routeRecordFromMap(map[string]any{"ttl": ttl, "servers": servers})
}

func routeRecordFromMap(m map[string]any) (routing.RouteRecord, error) {
	ttl, _ := asInt64(m["ttl"])
	serversAny, _ := m["servers"].([]any)

	rec := routing.RouteRecord{TTLSeconds: ttl}
	for _, s := range serversAny {
		entry, ok := s.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		addrsAny, _ := entry["addresses"].([]any)
		addrs := make([]string, 0, len(addrsAny))
		for _, a := range addrsAny {
			if str, ok := a.(string); ok {
				addrs = append(addrs, str)
			}
		}
		switch role {
		case "ROUTE":
			rec.Routers = addrs
		case "READ":
			rec.Readers = addrs
		case "WRITE":
			rec.Writers = addrs
		}
	}
	return rec, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// NewSession opens a Session against database using the given default
// access mode and bookmarks. Sessions are cheap and not meant to be shared
// across concurrent goroutines.
func (d *Driver) NewSession(database string, mode routing.AccessMode, bookmarks ...string) *Session {
	d.stats.recordSessionOpened()
	return &Session{
		driver:    d,
		database:  database,
		mode:      mode,
		bookmarks: append([]string(nil), bookmarks...),
	}
}

// VerifyConnectivity acquires and immediately releases a connection to
// confirm the target (or, in routing mode, at least one router) is
// reachable and authentication succeeds.
func (d *Driver) VerifyConnectivity(ctx context.Context) error {
	return d.withConnection(ctx, "", routing.Read, func(*bolt.Connection) error { return nil })
}

// Stats returns a point-in-time snapshot of every address pool this Driver
// has created plus cumulative session/transaction counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	pools := make(map[string]pool.Stats, len(d.pools))
	for addr, ap := range d.pools {
		pools[addr] = ap.Stats()
	}
	return Stats{Client: d.stats.snapshot(), Pools: pools}
}

// Close closes every address pool this Driver has opened. Sessions still
// borrowed from it at the time of Close are left to fail their next
// operation rather than being forcibly interrupted.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ap := range d.pools {
		ap.Close()
	}
	return nil
}
