package errors

import (
	"fmt"
	"maps"
)

// Error is the error type returned across the gatekeeper. Code decides
// the HTTP status and the retry policy; Message is safe to show to
// clients; Cause keeps the underlying failure for logs and errors.Is.
//
// An Error is never mutated once returned. WithDetail and WithDetails
// build copies.
type Error struct {
	Code    Code
	Message string
	Cause   error

	// Details holds structured context, e.g. {"claim": "exp"} or
	// {"limit": 60, "retry_after": 60}.
	Details map[string]any
}

// Error renders "CODE: message" followed by ": cause" when there is one.
func (e *Error) Error() string {
	s := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus is shorthand for e.Code.HTTPStatus().
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// WithDetails returns a copy of e with details merged over its own.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(cp.Details, e.Details)
	maps.Copy(cp.Details, details)
	return &cp
}

// WithDetail returns a copy of e with one more detail.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter. %+v prints the code, message, details
// and cause chain as a struct literal; %v and %s print Error(); %q quotes
// it.
func (e *Error) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
		if len(e.Details) > 0 {
			fmt.Fprintf(s, ", Details: %v", e.Details)
		}
		if e.Cause != nil {
			fmt.Fprintf(s, ", Cause: %+v", e.Cause)
		}
		fmt.Fprint(s, "}")
	case verb == 'v', verb == 's':
		fmt.Fprint(s, e.Error())
	case verb == 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
