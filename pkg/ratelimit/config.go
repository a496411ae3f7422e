package ratelimit

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Defaults applied by [DefaultConfig].
const (
	DefaultScope       = "api"
	DefaultMaxRequests = 60
	DefaultWindow      = 60 * time.Second
)

// Config configures a [Limiter].
type Config struct {
	// Scope namespaces the counter keys, so that several limiters can
	// share one store. Must not be empty.
	Scope string `json:"scope" yaml:"scope" env:"SCOPE" envDefault:"api"`

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `json:"max_requests" yaml:"max_requests" env:"MAX_REQUESTS" envDefault:"60"`

	// Window is the counter lifetime, refreshed by every admitted
	// request. Must be a positive whole number of seconds.
	Window time.Duration `json:"window" yaml:"window" env:"WINDOW" envDefault:"60s"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Scope:       DefaultScope,
		MaxRequests: DefaultMaxRequests,
		Window:      DefaultWindow,
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	switch {
	case c.Scope == "":
		return sserr.Configuration("ratelimit: scope must not be empty")
	case c.MaxRequests <= 0:
		return sserr.Configurationf("ratelimit: max requests must be positive, got %d", c.MaxRequests)
	case c.Window < time.Second:
		return sserr.Configurationf("ratelimit: window must be at least one second, got %s", c.Window)
	case c.Window%time.Second != 0:
		return sserr.Configurationf("ratelimit: window must be a whole number of seconds, got %s", c.Window)
	}
	return nil
}
