package token

import (
	"encoding/json"
	"maps"
	"math"
	"time"
)

// Registered claim names.
const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimAudience  = "aud"
	ClaimExpiresAt = "exp"
	ClaimNotBefore = "nbf"
	ClaimIssuedAt  = "iat"
	ClaimID        = "jti"
)

// Claims is the payload of a token: registered claims plus any
// caller-supplied claims. Numeric claims decoded by [Codec.Decode] are
// int64 when they hold whole numbers and float64 otherwise.
type Claims map[string]any

// Has reports whether the claim is present with a non-null value.
func (c Claims) Has(name string) bool {
	v, ok := c[name]
	return ok && v != nil
}

// String returns the claim as a string. The second result is false when
// the claim is absent or not a string.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Subject returns the sub claim, or "" if absent.
func (c Claims) Subject() string {
	s, _ := c.String(ClaimSubject)
	return s
}

// Issuer returns the iss claim, or "" if absent.
func (c Claims) Issuer() string {
	s, _ := c.String(ClaimIssuer)
	return s
}

// ID returns the jti claim, or "" if absent.
func (c Claims) ID() string {
	s, _ := c.String(ClaimID)
	return s
}

// Audience returns the aud claim as a list. A single string audience is
// returned as a one-element slice; non-string array elements are skipped.
func (c Claims) Audience() []string {
	switch aud := c[ClaimAudience].(type) {
	case string:
		if aud == "" {
			return nil
		}
		return []string{aud}
	case []string:
		return aud
	case []any:
		out := make([]string, 0, len(aud))
		for _, a := range aud {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time interprets a NumericDate claim (seconds since the epoch).
func (c Claims) Time(name string) (time.Time, bool) {
	var secs float64
	switch v := c[name].(type) {
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	default:
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), true
}

// ExpiresAt returns the exp claim.
func (c Claims) ExpiresAt() (time.Time, bool) { return c.Time(ClaimExpiresAt) }

// IssuedAt returns the iat claim.
func (c Claims) IssuedAt() (time.Time, bool) { return c.Time(ClaimIssuedAt) }

// NotBefore returns the nbf claim.
func (c Claims) NotBefore() (time.Time, bool) { return c.Time(ClaimNotBefore) }

// Clone returns a shallow copy of the claims.
func (c Claims) Clone() Claims {
	if c == nil {
		return Claims{}
	}
	return maps.Clone(c)
}

// normalize converts json.Number values, including those nested in
// objects and arrays, to int64 or float64.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}
