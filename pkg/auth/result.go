package auth

import (
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/token"
)

// Status is the terminal state of an authentication attempt.
type Status int

const (
	// StatusAnonymous means no credential header was present. Whether
	// that is acceptable is the route's decision.
	StatusAnonymous Status = iota

	// StatusAuthenticated means the token verified and the subject
	// resolved to an identity.
	StatusAuthenticated

	// StatusRejected means a credential was presented and refused.
	StatusRejected
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason explains a rejection.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMalformedHeader     Reason = "malformed_header"
	ReasonExpired             Reason = "expired"
	ReasonNotYetValid         Reason = "not_yet_valid"
	ReasonBadSignature        Reason = "bad_signature"
	ReasonMalformedToken      Reason = "malformed_token"
	ReasonInvalidClaims       Reason = "invalid_claims"
	ReasonUnknownSubject      Reason = "unknown_subject"
	ReasonResolverUnavailable Reason = "resolver_unavailable"
)

// reasonFor maps a token or claim error to its rejection reason.
func reasonFor(err error) Reason {
	code := sserr.GetCode(err)
	switch {
	case code == sserr.CodeTokenExpired:
		return ReasonExpired
	case code == sserr.CodeTokenNotYetValid:
		return ReasonNotYetValid
	case code == sserr.CodeTokenBadSignature:
		return ReasonBadSignature
	case code.IsClaimFailure():
		return ReasonInvalidClaims
	default:
		return ReasonMalformedToken
	}
}

// Result is the outcome of [Authenticator.Authenticate].
type Result struct {
	Status Status

	// Identity is set when Status is StatusAuthenticated.
	Identity Identity

	// Claims holds the verified claims when Status is StatusAuthenticated.
	Claims token.Claims

	// Reason and Err are set when Status is StatusRejected. Err is an
	// *errors.Error whose code identifies the precise failure.
	Reason Reason
	Err    error
}

// Authenticated reports whether the request carries a resolved identity.
func (r Result) Authenticated() bool { return r.Status == StatusAuthenticated }

// Rejected reports whether a presented credential was refused.
func (r Result) Rejected() bool { return r.Status == StatusRejected }

// HTTPStatus returns the status a host should answer a rejected request
// with: 400 for a malformed header, 503 when the resolver failed, 401
// otherwise. It returns 0 for non-rejected results.
func (r Result) HTTPStatus() int {
	if r.Status != StatusRejected {
		return 0
	}
	if e, ok := sserr.AsError(r.Err); ok {
		return e.HTTPStatus()
	}
	return http.StatusUnauthorized
}
