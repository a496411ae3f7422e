// Package redis provides a traced Redis client and the Redis-backed
// rate-limit counter store.
//
// The client wraps go-redis (github.com/redis/go-redis/v9) and adds
// OpenTelemetry spans and platform error codes to every command it
// exposes. Connection pooling, reconnection and retry are left to
// go-redis.
//
//	client, err := redis.NewClient(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	store := redis.NewCounterStore(client, redis.WithKeyPrefix(cfg.KeyPrefix))
//
// For unit tests, inject a mock or a miniredis-backed go-redis client with
// [NewFromClient].
package redis

import (
	"net/url"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// maxStatementTruncateLen bounds the db.statement span attribute so keys
// carrying user IDs or addresses are not recorded in full.
const maxStatementTruncateLen = 100

// Connection defaults.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 25
	DefaultMinIdleConns  = 5
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 500 * time.Millisecond
	DefaultWriteTimeout  = 500 * time.Millisecond
	DefaultHealthTimeout = 5 * time.Second
	DefaultKeyPrefix     = "gatekeeper:"
)

// Secret is a string that redacts itself when printed or marshaled.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string { return redacted }

// GoString returns "[REDACTED]" for %#v.
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText returns "[REDACTED]" so the password never reaches JSON or
// YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the Redis connection settings. When URI is set it takes
// precedence over Host, Port, DB and Password.
//
// Read timeouts default low: the counter store sits on the request path
// and a slow Redis should fail the rate-limit check quickly.
type Config struct {
	// URI is a redis:// or rediss:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	Host     string `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port     int    `json:"port,omitempty" yaml:"port" env:"PORT"`
	DB       int    `json:"db" yaml:"db" env:"DB"`
	Password Secret `json:"-" yaml:"password" env:"PASSWORD"`

	PoolSize     int `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int `json:"min_idle_conns,omitempty" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// MaxRetries is the per-command retry budget. -1 disables retries.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries" env:"MAX_RETRIES"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`

	// KeyPrefix is prepended to every counter key.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix" env:"KEY_PREFIX" envDefault:"gatekeeper:"`
}

// DefaultConfig returns a Config pointing at a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		KeyPrefix:    DefaultKeyPrefix,
	}
}

// Enabled reports whether a Redis endpoint is configured at all. The
// example server falls back to the in-memory counter store when it is
// not.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate fills zero-valued pool and timeout fields with defaults and
// returns the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternalConfiguration, "redis: config URI is invalid")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return sserr.Configurationf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return sserr.Configurationf("redis: config port must be between 1 and 65535, got %d", c.Port)
	case c.PoolSize < 1:
		return sserr.Configurationf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	case c.MinIdleConns < 0:
		return sserr.Configurationf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	case c.PoolSize < c.MinIdleConns:
		return sserr.Configurationf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	case c.DialTimeout < 0, c.ReadTimeout < 0, c.WriteTimeout < 0:
		return sserr.Configuration("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement cuts s to maxStatementTruncateLen runes, appending
// "..." when it had to cut.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
