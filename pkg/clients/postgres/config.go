package postgres

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// maxSQLTruncateLen bounds SQL statements recorded in trace spans.
const maxSQLTruncateLen = 100

// Connection pool and timeout defaults.
const (
	DefaultHost     = "localhost"
	DefaultPort     = 5432
	DefaultDatabase = "gatekeeper"
	DefaultUser     = "postgres"

	// DefaultUsersTable is the table the identity resolver reads.
	DefaultUsersTable = "users"

	DefaultMaxConns          int32 = 10
	DefaultMinConns          int32 = 2
	DefaultMaxConnLifetime         = time.Hour
	DefaultMaxConnIdleTime         = 30 * time.Minute
	DefaultHealthCheckPeriod       = time.Minute
	DefaultConnectTimeout          = 10 * time.Second
	DefaultHealthTimeout           = 5 * time.Second
)

// SSLMode represents the SSL/TLS connection mode for PostgreSQL. It maps
// directly to the sslmode connection parameter.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModeAllow      SSLMode = "allow"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// String returns the string representation of the SSL mode.
func (m SSLMode) String() string {
	return string(m)
}

// Valid reports whether the SSL mode is one of the recognized values.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer,
		SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

// Secret is a string that redacts itself when printed or marshaled.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string { return redacted }

// GoString returns "[REDACTED]" for %#v.
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText returns "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the PostgreSQL connection settings for the user store.
// When URI is set it takes precedence over Host, Port, Database, User and
// Password.
type Config struct {
	// URI is a postgres:// or postgresql:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	Host     string `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port     int    `json:"port,omitempty" yaml:"port" env:"PORT"`
	Database string `json:"database" yaml:"database" env:"DATABASE"`
	User     string `json:"user" yaml:"user" env:"USER"`
	Password Secret `json:"-" yaml:"password" env:"PASSWORD"`

	SSLMode SSLMode `json:"ssl_mode,omitempty" yaml:"ssl_mode" env:"SSLMODE"`

	// SSLRootCert is a PEM CA bundle used for verify-ca and verify-full.
	SSLRootCert string `json:"ssl_root_cert,omitempty" yaml:"ssl_root_cert" env:"SSL_ROOT_CERT"`

	MaxConns          int32         `json:"max_conns,omitempty" yaml:"max_conns" env:"MAX_CONNS"`
	MinConns          int32         `json:"min_conns,omitempty" yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime   time.Duration `json:"max_conn_lifetime,omitempty" yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `json:"max_conn_idle_time,omitempty" yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `json:"health_check_period,omitempty" yaml:"health_check_period" env:"HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`

	// UsersTable is the table [Resolver] looks subjects up in. It may be
	// schema-qualified ("auth.users").
	UsersTable string `json:"users_table,omitempty" yaml:"users_table" env:"USERS_TABLE" envDefault:"users"`
}

// DefaultConfig returns a Config for a local database.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Database:          DefaultDatabase,
		User:              DefaultUser,
		SSLMode:           SSLModePrefer,
		MaxConns:          DefaultMaxConns,
		MinConns:          DefaultMinConns,
		MaxConnLifetime:   DefaultMaxConnLifetime,
		MaxConnIdleTime:   DefaultMaxConnIdleTime,
		HealthCheckPeriod: DefaultHealthCheckPeriod,
		ConnectTimeout:    DefaultConnectTimeout,
		UsersTable:        DefaultUsersTable,
	}
}

// Enabled reports whether a database is configured. The example server
// uses a static resolver when it is not.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate applies defaults for zero-valued pool fields and returns the
// first invalid setting as a configuration error.
//
// With a URI only the URI itself is checked; structured fields are
// ignored.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.UsersTable == "" {
		c.UsersTable = DefaultUsersTable
	}
	if _, err := usersTableIdentifier(c.UsersTable); err != nil {
		return err
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternalConfiguration, "postgres: config URI is invalid")
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return sserr.Configurationf("postgres: config URI scheme must be postgres:// or postgresql://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModePrefer
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return sserr.Configurationf("postgres: config port must be between 1 and 65535, got %d", c.Port)
	case c.Database == "":
		return sserr.Configuration("postgres: config database must not be empty")
	case c.User == "":
		return sserr.Configuration("postgres: config user must not be empty")
	case !c.SSLMode.Valid():
		return sserr.Configurationf("postgres: config ssl_mode %q is not valid", c.SSLMode)
	case c.MaxConns < c.MinConns:
		return sserr.Configurationf("postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	if c.SSLRootCert != "" {
		if _, err := os.Stat(c.SSLRootCert); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"postgres: config ssl_root_cert %q is not accessible", c.SSLRootCert)
		}
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = DefaultHealthCheckPeriod
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString builds a connection string from the structured fields,
// or returns URI when set. The result carries the password in cleartext.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// tlsConfig builds a TLS config trusting SSLRootCert. It returns nil when
// no CA is configured so pgx handles TLS from sslmode alone.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.SSLRootCert == "" || c.SSLMode == SSLModeDisable {
		return nil, nil
	}

	caCert, err := os.ReadFile(c.SSLRootCert)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read CA certificate %q: %w", c.SSLRootCert, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("postgres: failed to parse CA certificate from %q", c.SSLRootCert)
	}

	tlsCfg := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	switch c.SSLMode {
	case SSLModeVerifyFull:
		tlsCfg.ServerName = c.Host
	case SSLModeVerifyCA:
		// Chain only; the standard hostname check is replaced by a
		// manual chain verification.
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("postgres: server did not present a certificate")
			}
			opts := x509.VerifyOptions{Roots: pool, Intermediates: x509.NewCertPool()}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	default:
		tlsCfg.InsecureSkipVerify = true
	}
	return tlsCfg, nil
}

// usersTableIdentifier splits a possibly schema-qualified table name and
// rejects anything that is not a plain identifier.
func usersTableIdentifier(name string) ([]string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, sserr.Configurationf("postgres: config users_table %q has too many parts", name)
	}
	for _, p := range parts {
		if !isIdentifier(p) {
			return nil, sserr.Configurationf("postgres: config users_table %q is not a valid identifier", name)
		}
	}
	return parts, nil
}

func isIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// truncateSQL cuts sql to maxSQLTruncateLen runes, appending "..." when
// it had to cut.
func truncateSQL(sql string) string {
	runes := []rune(sql)
	if len(runes) <= maxSQLTruncateLen {
		return sql
	}
	return string(runes[:maxSQLTruncateLen]) + "..."
}
