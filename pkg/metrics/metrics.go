// Package metrics exports authentication and rate-limit outcomes as
// Prometheus metrics.
//
// A [Collector] implements both auth.Observer and ratelimit.Observer:
//
//	m, err := metrics.New("gatekeeper", prometheus.DefaultRegisterer)
//	authenticator, _ := auth.NewAuthenticator(cfg, resolver, auth.WithObserver(m))
//	limiter, _ := ratelimit.NewLimiter(rlCfg, store, ratelimit.WithObserver(m))
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/ratelimit"
)

// DefaultNamespace prefixes every metric name when New is given "".
const DefaultNamespace = "gatekeeper"

// Rate-limit outcome label values.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Token operation label values for [Collector.ObserveToken].
const (
	OperationIssue   = "issue"
	OperationRefresh = "refresh"
)

// Collector holds the gatekeeper metrics. It is safe for concurrent use.
type Collector struct {
	authTotal      *prometheus.CounterVec
	rateLimitTotal *prometheus.CounterVec
	remaining      *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
}

var (
	_ auth.Observer      = (*Collector)(nil)
	_ ratelimit.Observer = (*Collector)(nil)
)

// New creates a Collector and registers it with registerer. A nil
// registerer means prometheus.DefaultRegisterer. Calling New twice with
// the same namespace and registerer yields collectors sharing the same
// series.
func New(namespace string, registerer prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	c := &Collector{
		authTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "requests_total",
				Help:      "Authentication outcomes by status and rejection reason.",
			},
			[]string{"status", "reason"},
		),
		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate-limit decisions by scope and outcome.",
			},
			[]string{"scope", "outcome"},
		),
		remaining: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "remaining_ratio",
				Help:      "Fraction of the window budget left after each admitted request.",
				Buckets:   []float64{0, .1, .25, .5, .75, 1},
			},
			[]string{"scope"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "tokens_total",
				Help:      "Tokens issued and refreshed, by result.",
			},
			[]string{"operation", "result"},
		),
	}

	var err error
	if c.authTotal, err = register(registerer, c.authTotal); err != nil {
		return nil, err
	}
	if c.rateLimitTotal, err = register(registerer, c.rateLimitTotal); err != nil {
		return nil, err
	}
	if c.remaining, err = register(registerer, c.remaining); err != nil {
		return nil, err
	}
	if c.tokensTotal, err = register(registerer, c.tokensTotal); err != nil {
		return nil, err
	}
	return c, nil
}

// register registers col, returning the already registered collector
// instead when an identical one exists.
func register[T prometheus.Collector](registerer prometheus.Registerer, col T) (T, error) {
	err := registerer.Register(col)
	if err == nil {
		return col, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return col, sserr.Wrap(err, sserr.CodeInternalConfiguration, "metrics: failed to register collector")
}

// Init pre-creates the authentication series so they appear in /metrics
// before the first request.
func (c *Collector) Init() {
	c.authTotal.WithLabelValues(auth.StatusAnonymous.String(), "")
	c.authTotal.WithLabelValues(auth.StatusAuthenticated.String(), "")
	for _, r := range []auth.Reason{
		auth.ReasonMalformedHeader, auth.ReasonExpired, auth.ReasonNotYetValid,
		auth.ReasonBadSignature, auth.ReasonMalformedToken, auth.ReasonInvalidClaims,
		auth.ReasonUnknownSubject, auth.ReasonResolverUnavailable,
	} {
		c.authTotal.WithLabelValues(auth.StatusRejected.String(), string(r))
	}
}

// ObserveAuthentication implements auth.Observer.
func (c *Collector) ObserveAuthentication(_ context.Context, res auth.Result) {
	c.authTotal.WithLabelValues(res.Status.String(), string(res.Reason)).Inc()
}

// ObserveRateLimit implements ratelimit.Observer.
func (c *Collector) ObserveRateLimit(_ context.Context, scope string, d ratelimit.Decision) {
	switch {
	case d.Allowed:
		c.rateLimitTotal.WithLabelValues(scope, OutcomeAllowed).Inc()
		if d.Limit > 0 {
			c.remaining.WithLabelValues(scope).Observe(float64(d.Remaining) / float64(d.Limit))
		}
	case sserr.IsRateLimited(d.Err):
		c.rateLimitTotal.WithLabelValues(scope, OutcomeRejected).Inc()
	default:
		c.rateLimitTotal.WithLabelValues(scope, OutcomeError).Inc()
	}
}

// ObserveToken counts an issue or refresh call.
func (c *Collector) ObserveToken(operation string, err error) {
	result := "ok"
	if err != nil {
		result = string(sserr.GetCode(err))
		if result == "" {
			result = "error"
		}
	}
	c.tokensTotal.WithLabelValues(operation, result).Inc()
}
