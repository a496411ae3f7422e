package errors

import "net/http"

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, RATE, INT) and XXX is a three-digit numeric code.
//
// Codes are stable once assigned; clients may switch on them.
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	RATE_xxx    - Rate limiting errors (429 Too Many Requests)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeMalformedHeader indicates the credential header is present but
	// does not match the configured scheme pattern.
	CodeMalformedHeader Code = "VAL_004"

	// Authentication errors (AUTH_xxx) - HTTP 401

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeTokenExpired indicates the token's exp claim lies in the past
	// beyond the configured leeway.
	CodeTokenExpired Code = "AUTH_002"

	// CodeTokenMalformed indicates the token cannot be parsed as a
	// compact JWS.
	CodeTokenMalformed Code = "AUTH_003"

	// CodeTokenBadSignature indicates the signature segment does not
	// verify against the signing key.
	CodeTokenBadSignature Code = "AUTH_004"

	// CodeTokenNotYetValid indicates the token's nbf claim lies in the
	// future beyond the configured leeway.
	CodeTokenNotYetValid Code = "AUTH_005"

	// CodeMissingClaim indicates a required claim is absent.
	CodeMissingClaim Code = "AUTH_006"

	// CodeInvalidIssuer indicates the iss claim is absent or unexpected.
	CodeInvalidIssuer Code = "AUTH_007"

	// CodeInvalidAudience indicates the aud claim is absent or unexpected.
	CodeInvalidAudience Code = "AUTH_008"

	// CodeUnknownSubject indicates the sub claim does not resolve to an
	// identity.
	CodeUnknownSubject Code = "AUTH_009"

	// Rate limiting errors (RATE_xxx) - HTTP 429

	// CodeRateLimitExceeded indicates the caller exhausted its request
	// budget for the current window.
	CodeRateLimitExceeded Code = "RATE_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalStore indicates a counter store or identity store
	// operation failed.
	CodeInternalStore Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error. These are
	// raised once at setup and should abort startup.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutStore indicates a store operation timed out.
	CodeTimeoutStore Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// categoryStatus maps a code category to the HTTP status a host answers
// with.
var categoryStatus = map[string]int{
	"VAL":     http.StatusBadRequest,
	"AUTH":    http.StatusUnauthorized,
	"RATE":    http.StatusTooManyRequests,
	"INT":     http.StatusInternalServerError,
	"UNAVAIL": http.StatusServiceUnavailable,
	"TIMEOUT": http.StatusGatewayTimeout,
}

// HTTPStatus returns the status for the code's category, 500 for unknown
// categories.
func (c Code) HTTPStatus() int {
	if status, ok := categoryStatus[c.Category()]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsClaimFailure reports whether the code is one of the claim validation
// failures (missing claim, issuer or audience mismatch).
func (c Code) IsClaimFailure() bool {
	switch c {
	case CodeMissingClaim, CodeInvalidIssuer, CodeInvalidAudience:
		return true
	default:
		return false
	}
}
