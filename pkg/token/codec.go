// Package token encodes and decodes signed, time-bound bearer tokens in
// JWT compact serialization and validates their claims.
//
// A [Codec] owns the signing key and algorithm. Decode verifies the
// signature before looking at any claim, then checks exp and nbf with a
// symmetric clock-skew leeway. A [Validator] enforces required claims and
// the expected issuer and audience on claims that already decoded.
//
// Every failure is an *errors.Error carrying one of CodeTokenExpired,
// CodeTokenNotYetValid, CodeTokenBadSignature, CodeTokenMalformed,
// CodeMissingClaim, CodeInvalidIssuer or CodeInvalidAudience.
package token

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// DefaultLeeway is the clock-skew tolerance applied to exp and nbf when
// no [WithLeeway] option is given.
const DefaultLeeway = 60 * time.Second

// maxTokenSize bounds the accepted token length (8 KB).
const maxTokenSize = 8192

// Algorithm identifies an HMAC signing algorithm.
type Algorithm string

// Supported algorithms.
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// ParseAlgorithm maps a configuration value to an [Algorithm]. The empty
// string selects HS256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToUpper(strings.TrimSpace(s))); a {
	case "":
		return HS256, nil
	case HS256, HS384, HS512:
		return a, nil
	default:
		return "", sserr.Configurationf("token: unsupported algorithm %q", s)
	}
}

func (a Algorithm) method() *jwt.SigningMethodHMAC {
	switch a {
	case HS256:
		return jwt.SigningMethodHS256
	case HS384:
		return jwt.SigningMethodHS384
	case HS512:
		return jwt.SigningMethodHS512
	default:
		return nil
	}
}

// Option configures a [Codec].
type Option func(*Codec)

// WithLeeway sets the clock-skew tolerance for exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithClock sets the time source used for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithoutTimeValidation disables the exp and nbf checks. The signature
// is still verified.
func WithoutTimeValidation() Option {
	return func(c *Codec) { c.skipTime = true }
}

// Codec signs and verifies tokens with a single HMAC key.
//
// Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	key      []byte
	alg      Algorithm
	leeway   time.Duration
	now      func() time.Time
	skipTime bool
	parser   *jwt.Parser
}

// NewCodec creates a Codec. An empty key, an unsupported algorithm or a
// negative leeway is a configuration error.
func NewCodec(key []byte, alg Algorithm, opts ...Option) (*Codec, error) {
	if len(key) == 0 {
		return nil, sserr.Configuration("token: signing key must not be empty")
	}
	if alg == "" {
		alg = HS256
	}
	if alg.method() == nil {
		return nil, sserr.Configurationf("token: unsupported algorithm %q", alg)
	}

	c := &Codec{
		key:    append([]byte(nil), key...),
		alg:    alg,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.leeway < 0 {
		return nil, sserr.Configuration("token: leeway must be non-negative")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{string(alg)}),
		jwt.WithJSONNumber(),
		jwt.WithStrictDecoding(),
		// exp and nbf are checked by checkTime so both bounds are inclusive.
		jwt.WithoutClaimsValidation(),
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// Algorithm returns the signing algorithm.
func (c *Codec) Algorithm() Algorithm { return c.alg }

// Leeway returns the clock-skew tolerance.
func (c *Codec) Leeway() time.Duration { return c.leeway }

// Encode signs the claims and returns the compact token.
func (c *Codec) Encode(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(c.alg.method(), jwt.MapClaims(claims))
	s, err := tok.SignedString(c.key)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeValidation, "token: claims cannot be encoded")
	}
	return s, nil
}

// Decode verifies the token signature, then its exp and nbf claims, and
// returns the claims. Whole-number claims come back as int64.
func (c *Codec) Decode(tokenStr string) (Claims, error) {
	if tokenStr == "" || len(tokenStr) > maxTokenSize {
		return nil, sserr.New(sserr.CodeTokenMalformed, "token: token is empty or too large")
	}

	mc := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(tokenStr, mc, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, c.classify(tokenStr, err)
	}
	claims := fromMapClaims(mc)
	if !c.skipTime {
		if err := c.checkTime(claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// checkTime accepts exp - now >= -leeway and nbf - now <= leeway. Absent
// claims are not checked; the Validator enforces presence.
func (c *Codec) checkTime(claims Claims) *sserr.Error {
	now := c.now()
	if claims.Has(ClaimExpiresAt) {
		exp, ok := claims.ExpiresAt()
		if !ok {
			return sserr.New(sserr.CodeTokenMalformed, "token: exp claim is not a number")
		}
		if now.After(exp.Add(c.leeway)) {
			return sserr.New(sserr.CodeTokenExpired, "token: token has expired")
		}
	}
	if claims.Has(ClaimNotBefore) {
		nbf, ok := claims.NotBefore()
		if !ok {
			return sserr.New(sserr.CodeTokenMalformed, "token: nbf claim is not a number")
		}
		if now.Before(nbf.Add(-c.leeway)) {
			return sserr.New(sserr.CodeTokenNotYetValid, "token: token is not yet valid")
		}
	}
	return nil
}

// Inspect decodes the token payload without verifying the signature or
// any claim. The result must never be used to make an authorization
// decision.
func (c *Codec) Inspect(tokenStr string) (Claims, error) {
	if tokenStr == "" || len(tokenStr) > maxTokenSize {
		return nil, sserr.New(sserr.CodeTokenMalformed, "token: token is empty or too large")
	}
	mc := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(tokenStr, mc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token: token is malformed")
	}
	return fromMapClaims(mc), nil
}

// classify maps a parser error to a token error code. Header and payload
// are decoded before the signature, so a malformed error on a token whose
// first two segments are intact means the signature segment itself was
// corrupted.
func (c *Codec) classify(tokenStr string, err error) *sserr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeTokenBadSignature, "token: signature is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		if c.segmentsIntact(tokenStr) {
			return sserr.Wrap(err, sserr.CodeTokenBadSignature, "token: signature is invalid")
		}
		return sserr.Wrap(err, sserr.CodeTokenMalformed, "token: token is malformed")
	default:
		return sserr.Wrap(err, sserr.CodeTokenMalformed, "token: token claims are malformed")
	}
}

func (c *Codec) segmentsIntact(tokenStr string) bool {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return false
	}
	for _, seg := range parts[:2] {
		raw, err := c.parser.DecodeSegment(seg)
		if err != nil || !json.Valid(raw) {
			return false
		}
	}
	return true
}

func fromMapClaims(mc jwt.MapClaims) Claims {
	out := make(Claims, len(mc))
	for k, v := range mc {
		out[k] = normalize(v)
	}
	return out
}
