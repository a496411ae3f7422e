package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/token"
)

type contextKey int

const (
	identityKey contextKey = iota
	claimsKey
)

// ContextWithIdentity returns a new context with the given Identity
// attached. The identity can later be retrieved with [IdentityFromContext].
//
// The HTTP middleware and gRPC interceptors call this after a request
// authenticates; upstream session layers may call it too, in which case
// the rate limiter keys on the identity instead of the caller address.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the Identity from the context.
// This function never returns a non-nil identity with false.
//
// Example:
//
//	identity, ok := auth.IdentityFromContext(ctx)
//	if !ok {
//	    return sserr.Unauthorized("no identity in context")
//	}
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok && identity != nil
}

// MustIdentityFromContext retrieves the Identity from the context, panicking
// if none is present. Use it only behind authentication middleware that
// rejects anonymous requests.
func MustIdentityFromContext(ctx context.Context) Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure authentication middleware is configured")
	}
	return identity
}

// ContextWithClaims attaches the verified token claims of the request.
func ContextWithClaims(ctx context.Context, claims token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified token claims attached by
// [ContextWithClaims].
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(token.Claims)
	return claims, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from the context.
// Returns the trace ID as a hex string and true if a valid trace is active.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
