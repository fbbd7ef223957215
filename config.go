package boltdriver

import (
	"time"

	"github.com/graphwire/bolt-go-driver/internal/pool"
	"github.com/graphwire/bolt-go-driver/internal/transport"
	"github.com/graphwire/bolt-go-driver/knownhosts"
	"github.com/graphwire/bolt-go-driver/log"
)

// LogLevel selects the verbosity of the injected Logger. It does not
// configure the Logger itself (that remains the caller's concern); it is
// surfaced so Config has something to parse logging.level into.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
)

// CircuitBreakerConfig tunes the per-address breaker wrapping every
// connection pool. A nil *CircuitBreakerConfig on Config disables breaking
// entirely: acquisition failures are reported as-is, with no open/half-open
// state tracked.
type CircuitBreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Config collects every driver-wide option. Build one with NewConfig and
// zero or more Options, or construct it directly; the zero value is not
// DefaultConfig (its pool size, timeouts and user agent are all zero).
type Config struct {
	Encrypted            bool
	Trust                transport.TrustStrategy
	TrustedCertificates  []string
	KnownHostsPath       string

	MaxConnectionPoolSize   int32
	MaxConnectionLifetime   time.Duration
	ConnectionTimeout       time.Duration
	MaxRetryTime            time.Duration

	CircuitBreaker *CircuitBreakerConfig

	Logger   log.Logger
	BoltLog  log.BoltLogger
	LogLevel LogLevel

	RoutingContext map[string]string
	UserAgent      string

	Transport transport.Kind
}

// Option mutates a Config under construction.
type Option func(*Config)

// DefaultConfig holds this driver's dial-timeout/pool-size defaults.
func DefaultConfig() Config {
	return Config{
		Encrypted:             false,
		Trust:                 transport.TrustSystemCAs,
		MaxConnectionPoolSize: 100,
		MaxConnectionLifetime: time.Hour,
		ConnectionTimeout:     5 * time.Second,
		MaxRetryTime:          30 * time.Second,
		UserAgent:             "bolt-go-driver/1.0",
	}
}

// NewConfig builds a Config from DefaultConfig with opts applied in order.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithEncryption(trust transport.TrustStrategy) Option {
	return func(c *Config) {
		c.Encrypted = true
		c.Trust = trust
	}
}

func WithoutEncryption() Option {
	return func(c *Config) { c.Encrypted = false; c.Trust = transport.TrustOff }
}

func WithTrustedCertificates(paths ...string) Option {
	return func(c *Config) { c.TrustedCertificates = paths }
}

func WithKnownHostsPath(path string) Option {
	return func(c *Config) { c.KnownHostsPath = path }
}

func WithMaxConnectionPoolSize(n int32) Option {
	return func(c *Config) { c.MaxConnectionPoolSize = n }
}

func WithMaxConnectionLifetime(d time.Duration) Option {
	return func(c *Config) { c.MaxConnectionLifetime = d }
}

func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionTimeout = d }
}

func WithMaxRetryTime(d time.Duration) Option {
	return func(c *Config) { c.MaxRetryTime = d }
}

func WithCircuitBreaker(maxRequests uint32, interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitBreaker = &CircuitBreakerConfig{MaxRequests: maxRequests, Interval: interval, Timeout: timeout}
	}
}

func WithLogger(logger log.Logger, level LogLevel) Option {
	return func(c *Config) { c.Logger = logger; c.LogLevel = level }
}

func WithBoltLogger(bl log.BoltLogger) Option {
	return func(c *Config) { c.BoltLog = bl }
}

func WithRoutingContext(rc map[string]string) Option {
	return func(c *Config) { c.RoutingContext = rc }
}

func WithUserAgent(agent string) Option {
	return func(c *Config) { c.UserAgent = agent }
}

// WithWebSocketTransport switches dialing from the native TCP transport to
// the browser-oriented WebSocket Channel.
func WithWebSocketTransport() Option {
	return func(c *Config) { c.Transport = transport.KindWebSocket }
}

// resolveKnownHosts returns the configured known-hosts path, or the default
// location if unset.
func (c Config) resolveKnownHosts() (string, error) {
	if c.KnownHostsPath != "" {
		return c.KnownHostsPath, nil
	}
	return knownhosts.DefaultPath()
}

// poolOptions translates the pool/lifetime knobs into internal/pool.Options.
func (c Config) poolOptions() pool.Options {
	opts := pool.Options{
		MaxSize: c.MaxConnectionPoolSize,
		MaxIdle: c.MaxConnectionLifetime,
	}
	if c.CircuitBreaker != nil {
		opts.BreakerSettings = &pool.BreakerSettings{
			MaxRequests: c.CircuitBreaker.MaxRequests,
			Interval:    c.CircuitBreaker.Interval,
			Timeout:     c.CircuitBreaker.Timeout,
		}
	}
	return opts
}
