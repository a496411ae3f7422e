package token

import (
	"slices"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Validator enforces claim presence and the expected issuer and
// audience. The zero value accepts any claim set.
type Validator struct {
	// Required lists claim names that must be present and non-null.
	Required []string

	// Issuer, when set, must equal the iss claim.
	Issuer string

	// Audience, when set, must equal the aud claim or one of its
	// elements.
	Audience string
}

// Validate checks required claims, then issuer, then audience, and
// returns the first failure.
func (v Validator) Validate(claims Claims) error {
	for _, name := range v.Required {
		if !claims.Has(name) {
			return sserr.MissingClaim(name)
		}
	}

	if v.Issuer != "" {
		if iss, ok := claims.String(ClaimIssuer); !ok || iss != v.Issuer {
			return sserr.New(sserr.CodeInvalidIssuer, "token: issuer is invalid")
		}
	}

	if v.Audience != "" && !slices.Contains(claims.Audience(), v.Audience) {
		return sserr.New(sserr.CodeInvalidAudience, "token: audience is invalid")
	}
	return nil
}
