package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("request rejected", "code", e.Code)
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether GetCode(err) is code.
//
//	if errors.HasCode(err, errors.CodeTokenExpired) {
//	    // ask the client to sign in again
//	}
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation checks if the error is a validation error (VAL_xxx).
func IsValidation(err error) bool {
	return hasCategory(err, "VAL")
}

// IsAuthentication checks if the error is an authentication error (AUTH_xxx).
// Token decode failures, claim failures and unknown subjects all qualify.
func IsAuthentication(err error) bool {
	return hasCategory(err, "AUTH")
}

// IsInvalidClaims checks if the error is a claim validation failure:
// a missing required claim or an issuer/audience mismatch.
func IsInvalidClaims(err error) bool {
	return GetCode(err).IsClaimFailure()
}

// IsRateLimited checks if the error is a rate limit rejection (RATE_xxx).
func IsRateLimited(err error) bool {
	return hasCategory(err, "RATE")
}

// IsInternal checks if the error is an internal error (INT_xxx).
func IsInternal(err error) bool {
	return hasCategory(err, "INT")
}

// IsConfiguration checks if the error is a configuration error.
func IsConfiguration(err error) bool {
	return HasCode(err, CodeInternalConfiguration)
}

// IsUnavailable checks if the error is a service unavailable error (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	return hasCategory(err, "UNAVAIL")
}

// IsTimeout checks if the error is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	return hasCategory(err, "TIMEOUT")
}

// IsRetryable reports whether the same request may succeed later:
// timeouts, unavailable dependencies and rate-limit rejections (after the
// window elapses). Token and claim failures never are; the caller needs
// a new token.
func IsRetryable(err error) bool {
	switch GetCode(err).Category() {
	case "TIMEOUT", "UNAVAIL", "RATE":
		return true
	}
	return false
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	status, ok := statusOf(err)
	return ok && status >= 400 && status < 500
}

// IsServerError reports whether err maps to a 5xx status. Hosts should
// not echo the message of such errors to clients.
func IsServerError(err error) bool {
	status, ok := statusOf(err)
	return ok && status >= 500
}

func statusOf(err error) (int, bool) {
	e, ok := AsError(err)
	if !ok {
		return 0, false
	}
	return e.HTTPStatus(), true
}
