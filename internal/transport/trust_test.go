package transport

import (
	"testing"

	"github.com/graphwire/bolt-go-driver/knownhosts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustOffReturnsNilConfig(t *testing.T) {
	cfg, err := TLSConfig{Strategy: TrustOff}.Build()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTrustSystemCAs(t *testing.T) {
	cfg, err := TLSConfig{Strategy: TrustSystemCAs, ServerName: "example.com"}.Build()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
}

func TestTrustAllSkipsVerification(t *testing.T) {
	cfg, err := TLSConfig{Strategy: TrustAll}.Build()
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestTrustCustomCAsFailsOnMissingFile(t *testing.T) {
	_, err := TLSConfig{Strategy: TrustCustomCAs, TrustedCertPaths: []string{"/does/not/exist.pem"}}.Build()
	require.Error(t, err)
}

func TestTrustOnFirstUseRequiresStore(t *testing.T) {
	_, err := TLSConfig{Strategy: TrustOnFirstUse}.Build()
	require.Error(t, err)
}

func TestTrustOnFirstUseBuildsVerifyCallback(t *testing.T) {
	store := knownhosts.NewStore(t.TempDir() + "/known_hosts")
	cfg, err := TLSConfig{Strategy: TrustOnFirstUse, KnownHosts: store, ServerName: "a.example.com", Port: 7687}.Build()
	require.NoError(t, err)
	require.NotNil(t, cfg.VerifyPeerCertificate)
	assert.True(t, cfg.InsecureSkipVerify)
}
