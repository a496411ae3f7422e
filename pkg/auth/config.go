package auth

import (
	"regexp"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/token"
)

// HeaderAuthorization is the default credential header.
const HeaderAuthorization = "Authorization"

// DefaultPattern matches "Bearer <token>" and captures the token.
const DefaultPattern = `^Bearer\s+(\S+)$`

// Config configures an [Authenticator]. It carries env, yaml and json
// tags for use with the config package; zero-valued fields fall back to
// the defaults documented on each field when passed to NewAuthenticator.
type Config struct {
	// HeaderName is the request header holding the credential.
	// Defaults to "Authorization".
	HeaderName string `json:"header_name" yaml:"header_name" env:"HEADER_NAME" envDefault:"Authorization"`

	// Pattern is a regular expression matched against the header value.
	// Its first capture group is the token. Defaults to [DefaultPattern].
	Pattern string `json:"pattern" yaml:"pattern" env:"PATTERN"`

	// Realm, when set, is included in WWW-Authenticate challenges.
	Realm string `json:"realm,omitempty" yaml:"realm" env:"REALM"`

	// SigningKey is the HMAC key used to sign and verify tokens.
	SigningKey Secret `json:"-" yaml:"signing_key" env:"SIGNING_KEY" required:"true"`

	// Algorithm is HS256, HS384 or HS512. Defaults to HS256.
	Algorithm string `json:"algorithm" yaml:"algorithm" env:"ALGORITHM" envDefault:"HS256"`

	// Issuer is this service's identity: written as iss on issued
	// tokens and, when non-empty, required of presented tokens.
	Issuer string `json:"issuer" yaml:"issuer" env:"ISSUER"`

	// Audience is written as aud on issued tokens and, when non-empty,
	// required of presented tokens.
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE"`

	// TokenLifetime is the exp - iat span of issued tokens. Defaults to 1h.
	TokenLifetime time.Duration `json:"token_lifetime" yaml:"token_lifetime" env:"TOKEN_LIFETIME" envDefault:"1h"`

	// Leeway is the clock-skew tolerance applied to exp and nbf.
	// Defaults to 60s; set a negative value to disable leeway entirely.
	Leeway time.Duration `json:"leeway" yaml:"leeway" env:"LEEWAY" envDefault:"60s"`

	// RequiredClaims must be present in every presented token.
	// Defaults to sub, exp and iat.
	RequiredClaims []string `json:"required_claims" yaml:"required_claims" env:"REQUIRED_CLAIMS" envDefault:"sub,exp,iat"`
}

// DefaultConfig returns a Config with every default filled in except the
// signing key.
func DefaultConfig() Config {
	return Config{
		HeaderName:     HeaderAuthorization,
		Pattern:        DefaultPattern,
		Algorithm:      string(token.HS256),
		TokenLifetime:  time.Hour,
		Leeway:         token.DefaultLeeway,
		RequiredClaims: []string{token.ClaimSubject, token.ClaimExpiresAt, token.ClaimIssuedAt},
	}
}

// withDefaults fills zero-valued fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeaderName == "" {
		c.HeaderName = d.HeaderName
	}
	if c.Pattern == "" {
		c.Pattern = d.Pattern
	}
	if c.Algorithm == "" {
		c.Algorithm = d.Algorithm
	}
	if c.TokenLifetime == 0 {
		c.TokenLifetime = d.TokenLifetime
	}
	if c.Leeway == 0 {
		c.Leeway = d.Leeway
	} else if c.Leeway < 0 {
		c.Leeway = 0
	}
	if c.RequiredClaims == nil {
		c.RequiredClaims = d.RequiredClaims
	}
	return c
}

// Validate reports the first configuration error. It implements
// config.Validator, so a misconfigured authenticator aborts startup at
// load time.
func (c *Config) Validate() error {
	cfg := c.withDefaults()
	_, err := cfg.compile()
	return err
}

// compiled holds the parsed form of a validated Config.
type compiled struct {
	pattern *regexp.Regexp
	alg     token.Algorithm
}

func (c Config) compile() (compiled, error) {
	if c.SigningKey.Value() == "" {
		return compiled{}, sserr.Configuration("auth: signing key must not be empty")
	}
	alg, err := token.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return compiled{}, err
	}
	if c.TokenLifetime < time.Second {
		return compiled{}, sserr.Configuration("auth: token lifetime must be at least one second")
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return compiled{}, sserr.Wrap(err, sserr.CodeInternalConfiguration, "auth: header pattern does not compile")
	}
	if re.NumSubexp() < 1 {
		return compiled{}, sserr.Configuration("auth: header pattern must capture the token in a group")
	}
	return compiled{pattern: re, alg: alg}, nil
}
