package boltdriver

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/graphwire/bolt-go-driver/internal/transport"
)

// Target is a parsed connection URL: which transport/trust combination to
// dial, the seed host:port, and any routing-context pairs carried in the
// query string.
type Target struct {
	Routing        bool
	Encrypted      bool
	Trust          transport.TrustStrategy
	Host           string
	Port           int
	RoutingContext map[string]string
}

// schemes maps every accepted scheme token to the (routing, encrypted,
// trust) triple it selects. bolt:// talks to exactly the server named in
// the URL; neo4j:// additionally runs this driver's routing layer,
// treating the URL's host as a seed router rather than the sole member.
var schemes = map[string]struct {
	routing   bool
	encrypted bool
	trust     transport.TrustStrategy
}{
	"bolt":         {routing: false, encrypted: false, trust: transport.TrustOff},
	"bolt+s":       {routing: false, encrypted: true, trust: transport.TrustSystemCAs},
	"bolt+ssc":     {routing: false, encrypted: true, trust: transport.TrustAll},
	"neo4j":        {routing: true, encrypted: false, trust: transport.TrustOff},
	"neo4j+s":      {routing: true, encrypted: true, trust: transport.TrustSystemCAs},
	"neo4j+ssc":    {routing: true, encrypted: true, trust: transport.TrustAll},
}

// ParseTarget parses one of this driver's connection URLs, e.g.
// "neo4j+s://cluster.example.com:7687?region=eu".
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("boltdriver: invalid connection URL: %w", err)
	}

	spec, ok := schemes[u.Scheme]
	if !ok {
		return Target{}, fmt.Errorf("boltdriver: unrecognized scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("boltdriver: connection URL has no host")
	}

	port := transport.DefaultPort
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return Target{}, fmt.Errorf("boltdriver: invalid port %q: %w", portStr, err)
		}
		port = p
	}

	rc := map[string]string{}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			rc[k] = vs[0]
		}
	}

	return Target{
		Routing:        spec.routing,
		Encrypted:      spec.encrypted,
		Trust:          spec.trust,
		Host:           host,
		Port:           port,
		RoutingContext: rc,
	}, nil
}

// Address renders host:port for dialing or for use as a routing seed.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}
