// Package errors provides the structured error type shared by the
// gatekeeper packages. Every failure carries a machine-readable code whose
// category determines the HTTP status a host should answer with.
//
// # Error Categories
//
//   - Validation errors: malformed credential headers, bad input
//   - Authentication errors: expired, malformed or forged tokens, claim
//     mismatches, unknown subjects
//   - Rate limiting errors: request budget exhausted
//   - Internal errors: store failures and configuration errors
//   - Unavailable errors: a dependency such as the counter store is down
//   - Timeout errors: a dependency call exceeded its deadline
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeTokenExpired, "token has expired")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalStore, "failed to read counter")
//
// Check error category:
//
//	if errors.IsRateLimited(err) {
//	    // retry after the window elapses
//	}
package errors
