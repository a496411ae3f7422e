// Package ratelimit implements a per-caller request counter with a
// refreshing window.
//
// Each caller is identified by its authenticated user ID, or by its
// network address when anonymous. The count for a caller lives in a
// [CounterStore] under "scope:user:{id}" or "scope:ip:{address}". A
// request is admitted while the count is below MaxRequests; every
// admitted request increments the count and resets its TTL to the full
// window, so the window closes Window after the caller's last admitted
// request rather than at a fixed boundary.
//
// Every decision writes X-RateLimit-Limit and X-RateLimit-Remaining to the
// response sink. A rejection also writes Retry-After and status 429.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/ratelimit"

// unknownAddress identifies callers with neither a user ID nor an address.
// They share one counter.
const unknownAddress = "unknown"

// Caller identifies the requester being limited.
type Caller struct {
	// UserID is the authenticated identity ID, empty for anonymous callers.
	UserID string

	// Address is the caller's network address.
	Address string
}

// Identifier returns "user:{id}" for authenticated callers and
// "ip:{address}" otherwise.
func (c Caller) Identifier() string {
	if c.UserID != "" {
		return "user:" + c.UserID
	}
	if c.Address != "" {
		return "ip:" + c.Address
	}
	return "ip:" + unknownAddress
}

// Decision is the outcome of [Limiter.Check].
type Decision struct {
	Allowed bool

	// Key is the counter key the decision was made on.
	Key string

	// Limit is MaxRequests.
	Limit int

	// Remaining is how many more requests the caller may make in the
	// current window, floored at 0.
	Remaining int

	// RetryAfter is set on rejection. The counter expires at most this
	// long after the rejection.
	RetryAfter time.Duration

	// Err is a CodeRateLimitExceeded error on rejection, or the store
	// error when the check could not be made.
	Err error
}

// Observer is notified of every decision, including the failed checks
// [Limiter.Check] returns an error for.
type Observer interface {
	ObserveRateLimit(ctx context.Context, scope string, d Decision)
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithObserver registers a decision observer.
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Limiter) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// Limiter admits or rejects requests per caller. It holds no per-caller
// state of its own and is safe for concurrent use.
type Limiter struct {
	cfg      Config
	store    CounterStore
	atomic   AtomicCounterStore
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewLimiter creates a Limiter. An invalid config or a nil store is a
// configuration error.
func NewLimiter(cfg Config, store CounterStore, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, sserr.Configuration("ratelimit: counter store must not be nil")
	}
	l := &Limiter{
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	l.atomic, _ = store.(AtomicCounterStore)
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Key returns the counter key for caller.
func (l *Limiter) Key(caller Caller) string {
	return l.cfg.Scope + ":" + caller.Identifier()
}

// Check counts the request against caller's budget.
//
// A rejection is a Decision with Allowed false, not an error. The error
// is non-nil only when the counter store fails; it is then a
// CodeUnavailableDependency (or CodeTimeoutStore when ctx expired) error,
// status 503 (or 504) has been written to sink, and the request should
// not proceed.
func (l *Limiter) Check(ctx context.Context, caller Caller, sink response.Sink) (Decision, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.Check")
	defer span.End()

	if sink == nil {
		sink = response.Discard
	}

	key := l.Key(caller)
	limit := int64(l.cfg.MaxRequests)
	span.SetAttributes(
		attribute.String("ratelimit.scope", l.cfg.Scope),
		attribute.String("ratelimit.key", key),
	)

	count, admitted, err := l.count(ctx, key, limit)
	if err != nil {
		serr := storeError(err)
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		l.logger.WarnContext(ctx, "ratelimit: counter store failed", "key", key, "error", err)
		sink.SetStatus(serr.HTTPStatus())
		d := Decision{Key: key, Limit: l.cfg.MaxRequests, Err: serr}
		if l.observer != nil {
			l.observer.ObserveRateLimit(ctx, l.cfg.Scope, d)
		}
		return d, serr
	}

	d := Decision{
		Allowed: admitted,
		Key:     key,
		Limit:   l.cfg.MaxRequests,
	}
	if admitted {
		d.Remaining = max(int(limit-count-1), 0)
	} else {
		d.RetryAfter = l.cfg.Window
		d.Err = sserr.RateLimited("ratelimit: request limit exceeded").
			WithDetail("limit", l.cfg.MaxRequests).
			WithDetail("retry_after", int(l.cfg.Window/time.Second))
		l.logger.DebugContext(ctx, "ratelimit: request rejected", "key", key, "count", count)
	}

	sink.SetHeader(response.HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	sink.SetHeader(response.HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	if !admitted {
		sink.SetHeader(response.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter/time.Second)))
		sink.SetStatus(http.StatusTooManyRequests)
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", d.Allowed),
		attribute.Int("ratelimit.remaining", d.Remaining),
	)
	if l.observer != nil {
		l.observer.ObserveRateLimit(ctx, l.cfg.Scope, d)
	}
	return d, nil
}

// count returns the count observed before this request and whether the
// request was admitted.
func (l *Limiter) count(ctx context.Context, key string, limit int64) (int64, bool, error) {
	if l.atomic != nil {
		return l.atomic.IncrementIfBelow(ctx, key, limit, l.cfg.Window)
	}

	count, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if count >= limit {
		return count, false, nil
	}
	if err := l.store.Set(ctx, key, count+1, l.cfg.Window); err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func storeError(err error) *sserr.Error {
	return sserr.WrapStore(err, sserr.CodeUnavailableDependency, "ratelimit: counter store unavailable")
}
