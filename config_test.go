package boltdriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/graphwire/bolt-go-driver/internal/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Encrypted)
	assert.Equal(t, transport.TrustSystemCAs, cfg.Trust)
	assert.EqualValues(t, 100, cfg.MaxConnectionPoolSize)
	assert.Equal(t, time.Hour, cfg.MaxConnectionLifetime)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryTime)
	assert.Nil(t, cfg.CircuitBreaker)
	assert.Equal(t, "bolt-go-driver/1.0", cfg.UserAgent)
}

func TestNewConfigAppliesOptionsInOrder(t *testing.T) {
	cfg := NewConfig(
		WithEncryption(transport.TrustAll),
		WithMaxConnectionPoolSize(50),
		WithMaxConnectionLifetime(10*time.Minute),
		WithConnectionTimeout(2*time.Second),
		WithMaxRetryTime(time.Minute),
		WithUserAgent("custom-agent/9"),
		WithRoutingContext(map[string]string{"region": "eu"}),
	)
	assert.True(t, cfg.Encrypted)
	assert.Equal(t, transport.TrustAll, cfg.Trust)
	assert.EqualValues(t, 50, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 10*time.Minute, cfg.MaxConnectionLifetime)
	assert.Equal(t, 2*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, time.Minute, cfg.MaxRetryTime)
	assert.Equal(t, "custom-agent/9", cfg.UserAgent)
	assert.Equal(t, "eu", cfg.RoutingContext["region"])
}

func TestWithoutEncryptionOverridesTrust(t *testing.T) {
	cfg := NewConfig(WithEncryption(transport.TrustSystemCAs), WithoutEncryption())
	assert.False(t, cfg.Encrypted)
	assert.Equal(t, transport.TrustOff, cfg.Trust)
}

func TestWithCircuitBreakerSetsAllFields(t *testing.T) {
	cfg := NewConfig(WithCircuitBreaker(5, time.Second, 30*time.Second))
	if assert.NotNil(t, cfg.CircuitBreaker) {
		assert.EqualValues(t, 5, cfg.CircuitBreaker.MaxRequests)
		assert.Equal(t, time.Second, cfg.CircuitBreaker.Interval)
		assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Timeout)
	}
}

func TestWithWebSocketTransport(t *testing.T) {
	cfg := NewConfig(WithWebSocketTransport())
	assert.Equal(t, transport.KindWebSocket, cfg.Transport)
}

func TestPoolOptionsTranslation(t *testing.T) {
	cfg := NewConfig(
		WithMaxConnectionPoolSize(42),
		WithMaxConnectionLifetime(time.Minute),
		WithCircuitBreaker(3, 2*time.Second, 4*time.Second),
	)
	opts := cfg.poolOptions()
	assert.EqualValues(t, 42, opts.MaxSize)
	assert.Equal(t, time.Minute, opts.MaxIdle)
	if assert.NotNil(t, opts.BreakerSettings) {
		assert.EqualValues(t, 3, opts.BreakerSettings.MaxRequests)
		assert.Equal(t, 2*time.Second, opts.BreakerSettings.Interval)
		assert.Equal(t, 4*time.Second, opts.BreakerSettings.Timeout)
	}
}

func TestPoolOptionsWithoutCircuitBreaker(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.poolOptions()
	assert.Nil(t, opts.BreakerSettings)
}

func TestResolveKnownHostsUsesConfiguredPath(t *testing.T) {
	cfg := NewConfig(WithKnownHostsPath("/tmp/known_hosts"))
	path, err := cfg.resolveKnownHosts()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/known_hosts", path)
}
