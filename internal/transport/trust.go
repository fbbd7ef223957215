package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/graphwire/bolt-go-driver/knownhosts"
)

// TrustStrategy selects how the native transport verifies a peer's TLS
// certificate.
type TrustStrategy int

const (
	TrustOff TrustStrategy = iota
	TrustCustomCAs
	TrustSystemCAs
	TrustAll
	TrustOnFirstUse
)

// TLSConfig describes the inputs needed to build a *tls.Config for a given
// TrustStrategy and target host.
type TLSConfig struct {
	Strategy         TrustStrategy
	TrustedCertPaths []string // for TrustCustomCAs
	KnownHosts       *knownhosts.Store // for TrustOnFirstUse
	ServerName       string
	Port             int
}

// Build returns nil (meaning "plain text") for TrustOff, and a *tls.Config
// otherwise. TrustOnFirstUse relies on InsecureSkipVerify plus its own
// VerifyPeerCertificate callback, since Go's default verifier has no
// notion of "trust whatever we saw last time".
func (c TLSConfig) Build() (*tls.Config, error) {
	switch c.Strategy {
	case TrustOff:
		return nil, nil
	case TrustSystemCAs:
		return &tls.Config{ServerName: c.ServerName}, nil
	case TrustCustomCAs:
		pool := x509.NewCertPool()
		for _, path := range c.TrustedCertPaths {
			pem, err := readFile(path)
			if err != nil {
				return nil, fmt.Errorf("transport: reading trusted certificate %s: %w", path, err)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("transport: %s contains no usable certificates", path)
			}
		}
		return &tls.Config{ServerName: c.ServerName, RootCAs: pool}, nil
	case TrustAll:
		return &tls.Config{ServerName: c.ServerName, InsecureSkipVerify: true}, nil
	case TrustOnFirstUse:
		if c.KnownHosts == nil {
			return nil, fmt.Errorf("transport: on-first-use trust requires a known-hosts store")
		}
		host, port := c.ServerName, c.Port
		store := c.KnownHosts
		return &tls.Config{
			ServerName:         c.ServerName,
			InsecureSkipVerify: true,
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return fmt.Errorf("transport: no certificate presented by %s", host)
				}
				fp := knownhosts.Fingerprint(rawCerts[0])
				return store.Verify(host, port, fp)
			},
		}, nil
	default:
		return nil, fmt.Errorf("transport: unknown trust strategy %d", c.Strategy)
	}
}

var readFile = defaultReadFile
