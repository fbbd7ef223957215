package boltdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/bolt-go-driver/internal/transport"
)

func TestParseTargetSchemes(t *testing.T) {
	cases := []struct {
		name      string
		url       string
		routing   bool
		encrypted bool
		trust     transport.TrustStrategy
		host      string
		port      int
	}{
		{"bolt", "bolt://db.example.com:7687", false, false, transport.TrustOff, "db.example.com", 7687},
		{"bolt+s", "bolt+s://db.example.com:7687", false, true, transport.TrustSystemCAs, "db.example.com", 7687},
		{"bolt+ssc", "bolt+ssc://db.example.com:7687", false, true, transport.TrustAll, "db.example.com", 7687},
		{"neo4j", "neo4j://cluster.example.com:7687", true, false, transport.TrustOff, "cluster.example.com", 7687},
		{"neo4j+s", "neo4j+s://cluster.example.com:7687", true, true, transport.TrustSystemCAs, "cluster.example.com", 7687},
		{"neo4j+ssc", "neo4j+ssc://cluster.example.com:7687", true, true, transport.TrustAll, "cluster.example.com", 7687},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := ParseTarget(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.routing, target.Routing)
			assert.Equal(t, tc.encrypted, target.Encrypted)
			assert.Equal(t, tc.trust, target.Trust)
			assert.Equal(t, tc.host, target.Host)
			assert.Equal(t, tc.port, target.Port)
		})
	}
}

func TestParseTargetDefaultPort(t *testing.T) {
	target, err := ParseTarget("bolt://db.example.com")
	require.NoError(t, err)
	assert.Equal(t, transport.DefaultPort, target.Port)
	assert.Equal(t, "db.example.com:7687", target.Address())
}

func TestParseTargetRoutingContext(t *testing.T) {
	target, err := ParseTarget("neo4j://cluster.example.com:7687?region=eu&policy=fast")
	require.NoError(t, err)
	assert.Equal(t, "eu", target.RoutingContext["region"])
	assert.Equal(t, "fast", target.RoutingContext["policy"])
}

func TestParseTargetErrors(t *testing.T) {
	cases := map[string]string{
		"unknown scheme": "http://db.example.com:7687",
		"missing host":   "bolt://:7687",
		"bad port":       "bolt://db.example.com:notaport",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTarget(url)
			assert.Error(t, err)
		})
	}
}

func TestTargetAddressJoinsHostPort(t *testing.T) {
	target := Target{Host: "127.0.0.1", Port: 7688}
	assert.Equal(t, "127.0.0.1:7688", target.Address())
}
