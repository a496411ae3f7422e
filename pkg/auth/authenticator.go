package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/token"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"

// HeaderSource reads a request header by name. [net/http.Header]
// satisfies it.
type HeaderSource interface {
	Get(name string) string
}

// Observer is notified of every authentication outcome. The metrics
// package provides a Prometheus implementation.
type Observer interface {
	ObserveAuthentication(ctx context.Context, result Result)
}

// Option configures an [Authenticator].
type Option func(*Authenticator)

// WithClock sets the time source for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(a *Authenticator) { a.observer = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Authenticator) {
		if tp != nil {
			a.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithIDGenerator replaces the jti generator. The default renders a
// random UUID as 32 hex characters.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(a *Authenticator) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// Authenticator validates bearer credentials and issues tokens.
//
// Authenticator is safe for concurrent use.
type Authenticator struct {
	cfg       Config
	pattern   *regexp.Regexp
	codec     *token.Codec
	validator token.Validator
	resolver  IdentityResolver
	observer  Observer
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() (string, error)
}

// NewAuthenticator creates an Authenticator. Invalid configuration and a
// nil resolver are configuration errors.
func NewAuthenticator(cfg Config, resolver IdentityResolver, opts ...Option) (*Authenticator, error) {
	cfg = cfg.withDefaults()
	c, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, sserr.Configuration("auth: identity resolver must not be nil")
	}

	a := &Authenticator{
		cfg:      cfg,
		pattern:  c.pattern,
		resolver: resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newID:    randomID,
		validator: token.Validator{
			Required: append([]string(nil), cfg.RequiredClaims...),
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.codec, err = token.NewCodec([]byte(cfg.SigningKey.Value()), c.alg,
		token.WithLeeway(cfg.Leeway),
		token.WithClock(func() time.Time { return a.now() }),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Authenticate runs the authentication state machine against the request
// headers. On rejection it writes the status and a WWW-Authenticate
// challenge to sink; on success or anonymity it writes nothing.
func (a *Authenticator) Authenticate(ctx context.Context, headers HeaderSource, sink response.Sink) Result {
	ctx, span := a.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	if sink == nil {
		sink = response.Discard
	}

	res := a.authenticate(ctx, headers)

	span.SetAttributes(attribute.String("auth.status", res.Status.String()))
	switch res.Status {
	case StatusAuthenticated:
		span.SetAttributes(
			attribute.String("auth.identity_id", res.Identity.ID()),
			attribute.String("auth.identity_type", res.Identity.Type().String()),
		)
	case StatusRejected:
		span.SetAttributes(attribute.String("auth.reason", string(res.Reason)))
		finishSpan(span, res.Err)
		a.signal(sink, res)
	}

	if a.observer != nil {
		a.observer.ObserveAuthentication(ctx, res)
	}
	return res
}

func (a *Authenticator) authenticate(ctx context.Context, headers HeaderSource) Result {
	raw := ""
	if headers != nil {
		raw = strings.TrimSpace(headers.Get(a.cfg.HeaderName))
	}
	if raw == "" {
		return Result{Status: StatusAnonymous}
	}

	m := a.pattern.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return a.reject(ctx, ReasonMalformedHeader,
			sserr.Newf(sserr.CodeMalformedHeader, "auth: %s header does not match the expected scheme", a.cfg.HeaderName))
	}

	claims, err := a.codec.Decode(m[1])
	if err != nil {
		return a.reject(ctx, reasonFor(err), err)
	}
	if err := a.validator.Validate(claims); err != nil {
		return a.reject(ctx, ReasonInvalidClaims, err)
	}

	subject := claims.Subject()
	identity, found, err := a.resolver.Resolve(ctx, subject)
	if err != nil {
		a.logger.WarnContext(ctx, "auth: identity resolver failed", "error", err)
		return a.reject(ctx, ReasonResolverUnavailable,
			sserr.Wrap(err, sserr.CodeUnavailableDependency, "auth: identity resolver unavailable"))
	}
	if !found || identity == nil {
		return a.reject(ctx, ReasonUnknownSubject,
			sserr.New(sserr.CodeUnknownSubject, "auth: token subject is unknown"))
	}

	return Result{Status: StatusAuthenticated, Identity: identity, Claims: claims}
}

func (a *Authenticator) reject(ctx context.Context, reason Reason, err error) Result {
	a.logger.DebugContext(ctx, "auth: request rejected", "reason", string(reason), "error", err)
	return Result{Status: StatusRejected, Reason: reason, Err: err}
}

// signal writes the rejection status and challenge (RFC 6750 section 3).
func (a *Authenticator) signal(sink response.Sink, res Result) {
	status := res.HTTPStatus()
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		sink.SetHeader(response.HeaderWWWAuthenticate, a.challenge(res))
	}
	sink.SetStatus(status)
}

func (a *Authenticator) challenge(res Result) string {
	var params []string
	if a.cfg.Realm != "" {
		params = append(params, fmt.Sprintf("realm=%q", a.cfg.Realm))
	}
	if res.Reason == ReasonMalformedHeader {
		params = append(params, `error="invalid_request"`)
	} else {
		params = append(params, `error="invalid_token"`)
	}
	params = append(params, fmt.Sprintf("error_description=%q", describe(res.Reason)))
	return "Bearer " + strings.Join(params, ", ")
}

func describe(r Reason) string {
	switch r {
	case ReasonMalformedHeader:
		return "malformed authorization header"
	case ReasonExpired:
		return "the token has expired"
	case ReasonNotYetValid:
		return "the token is not yet valid"
	case ReasonBadSignature:
		return "the token signature is invalid"
	case ReasonInvalidClaims:
		return "the token claims are invalid"
	case ReasonUnknownSubject:
		return "the token subject is unknown"
	default:
		return "the token is malformed"
	}
}

// Issue creates a token for identity. Standard claims (iss, aud, iat, nbf,
// exp, sub, jti) are merged over extra; a reserved name in extra never
// overrides the standard value.
func (a *Authenticator) Issue(ctx context.Context, identity Identity, extra map[string]any) (string, error) {
	_, span := a.tracer.Start(ctx, "auth.Issue")
	defer span.End()

	if identity == nil || identity.ID() == "" {
		err := sserr.New(sserr.CodeValidationRequired, "auth: identity with a non-empty ID is required")
		finishSpan(span, err)
		return "", err
	}

	claims := make(token.Claims, len(extra)+7)
	maps.Copy(claims, extra)
	delete(claims, token.ClaimIssuer)
	delete(claims, token.ClaimAudience)
	claims[token.ClaimSubject] = identity.ID()

	tok, err := a.stamp(claims, true)
	if err != nil {
		finishSpan(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("auth.identity_id", identity.ID()))
	return tok, nil
}

// Refresh re-issues a token that currently passes full decode validation.
// iat, exp and jti are replaced; every other claim, nbf included, is
// carried over. The new exp is always later than the old one, even when
// both are issued in the same second. An expired token cannot be
// refreshed. Failures are the errors Decode returns.
func (a *Authenticator) Refresh(ctx context.Context, old string) (string, error) {
	_, span := a.tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	claims, err := a.codec.Decode(old)
	if err != nil {
		finishSpan(span, err)
		return "", err
	}
	tok, err := a.stamp(claims, false)
	if err != nil {
		finishSpan(span, err)
		return "", err
	}
	return tok, nil
}

// stamp sets iat, exp and jti (plus iss, aud and nbf for fresh tokens)
// and encodes the claims.
func (a *Authenticator) stamp(claims token.Claims, fresh bool) (string, error) {
	jti, err := a.newID()
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "auth: failed to generate token ID")
	}
	now := a.now().Unix()
	exp := now + int64(a.cfg.TokenLifetime/time.Second)
	if !fresh {
		// A refreshed token always outlives the one it replaces.
		if old, ok := claims.ExpiresAt(); ok {
			exp = max(exp, old.Unix()+1)
		}
	}
	claims[token.ClaimIssuedAt] = now
	claims[token.ClaimExpiresAt] = exp
	claims[token.ClaimID] = jti
	if fresh {
		claims[token.ClaimNotBefore] = now
		if a.cfg.Issuer != "" {
			claims[token.ClaimIssuer] = a.cfg.Issuer
		}
		if a.cfg.Audience != "" {
			claims[token.ClaimAudience] = a.cfg.Audience
		}
	}
	return a.codec.Encode(claims)
}

// Verify reports whether the token decodes: signature, exp and nbf. It
// does not validate claims or resolve the subject, so it must not be
// used to authorize a request.
func (a *Authenticator) Verify(tokenStr string) bool {
	_, err := a.codec.Decode(tokenStr)
	return err == nil
}

// Inspect returns the token claims without verifying anything. For
// debugging and introspection only.
func (a *Authenticator) Inspect(tokenStr string) (token.Claims, error) {
	return a.codec.Inspect(tokenStr)
}

// Config returns the effective configuration.
func (a *Authenticator) Config() Config { return a.cfg }

// randomID returns 128 random bits as 32 lowercase hex characters.
func randomID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
