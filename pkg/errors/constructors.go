package errors

import (
	"context"
	"errors"
	"fmt"
)

// New returns an Error with code and message.
//
//	err := errors.New(errors.CodeTokenExpired, "token has expired")
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns an Error with err as its Cause, or nil when err is nil.
//
//	n, err := store.Get(ctx, key)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalStore, "failed to read counter")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapStore classifies a failed counter-store or database call. An
// expired context deadline becomes CodeTimeoutStore; anything else
// takes code. Nil stays nil.
func WrapStore(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, CodeTimeoutStore, message)
	}
	return Wrap(err, code, message)
}

// MissingClaim reports a required claim absent from a token. The claim
// name is kept in Details["claim"].
func MissingClaim(name string) *Error {
	return Newf(CodeMissingClaim, "token: required claim %q is missing", name).
		WithDetail("claim", name)
}

// Unauthorized returns a CodeAuthentication error, for authentication
// failures without a more specific code.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// RateLimited returns a CodeRateLimitExceeded error.
func RateLimited(message string) *Error {
	return New(CodeRateLimitExceeded, message)
}

// Configuration returns a CodeInternalConfiguration error. Constructors
// return these and callers should abort startup on them.
//
//	if len(key) == 0 {
//	    return nil, errors.Configuration("signing key must not be empty")
//	}
func Configuration(message string) *Error {
	return New(CodeInternalConfiguration, message)
}

// Configurationf is Configuration with a formatted message.
func Configurationf(format string, args ...any) *Error {
	return Newf(CodeInternalConfiguration, format, args...)
}

// FromError returns err as an *Error, wrapping anything else as
// CodeInternal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
