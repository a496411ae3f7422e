// Package pipeline composes the authenticator and rate limiter into an
// ordered chain of stages that a host transport runs before its handler.
//
// Each stage inspects the request, may enrich the context, and returns a
// [Verdict]. The first rejecting stage stops the chain; its status and
// the response signals it wrote to the sink are what the transport
// renders. [Pipeline.Middleware] adapts a pipeline to net/http and
// [Pipeline.UnaryServerInterceptor] / [Pipeline.StreamServerInterceptor]
// adapt it to gRPC.
//
// Placing RateLimitStage first keys callers by an identity already in the
// request context (a session established upstream) or else by address;
// placing it after AuthenticateStage keys authenticated callers by their
// token subject.
//
// Example:
//
//	p := pipeline.New(
//	    pipeline.RateLimitStage(limiter),
//	    pipeline.AuthenticateStage(authenticator, false),
//	).WithTrustForwardedFor(true)
//	http.ListenAndServe(":8080", p.Middleware()(mux))
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/ratelimit"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
)

// Request is the transport-neutral view of an inbound request.
type Request struct {
	// Headers gives case-insensitive access to request headers.
	Headers auth.HeaderSource

	// Address is the caller's network address, without port.
	Address string
}

// Verdict is the outcome of a stage or of a whole pipeline run.
type Verdict struct {
	Allowed bool

	// Status is the HTTP status to answer with when Allowed is false.
	Status int

	// Err carries the *errors.Error behind a rejection.
	Err error
}

// Allow is the verdict of a stage that lets the request continue.
var Allow = Verdict{Allowed: true}

// Reject builds a rejecting verdict from err, taking the status from its
// error code.
func Reject(err error) Verdict {
	status := http.StatusInternalServerError
	if e, ok := sserr.AsError(err); ok {
		status = e.HTTPStatus()
	}
	return Verdict{Status: status, Err: err}
}

// Stage is one step of the pipeline. It returns the context the next
// stage and the handler should see.
type Stage func(ctx context.Context, req *Request, sink response.Sink) (context.Context, Verdict)

// Pipeline runs its stages in order.
type Pipeline struct {
	stages            []Stage
	logger            *slog.Logger
	trustForwardedFor bool
}

// New returns a Pipeline running stages in the given order. Nil stages
// are skipped.
func New(stages ...Stage) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// WithLogger sets the logger used for rejection diagnostics.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithTrustForwardedFor makes the transports take the caller address from
// the first X-Forwarded-For hop. Enable it only behind a proxy that sets
// the header.
func (p *Pipeline) WithTrustForwardedFor(trust bool) *Pipeline {
	p.trustForwardedFor = trust
	return p
}

// Run executes the stages until one rejects. The returned context carries
// whatever the allowing stages attached.
func (p *Pipeline) Run(ctx context.Context, req *Request, sink response.Sink) (context.Context, Verdict) {
	if sink == nil {
		sink = response.Discard
	}
	for _, stage := range p.stages {
		next, v := stage(ctx, req, sink)
		if !v.Allowed {
			if v.Status == 0 {
				v.Status = http.StatusInternalServerError
			}
			p.logger.DebugContext(ctx, "pipeline: request rejected",
				"status", v.Status,
				"code", string(sserr.GetCode(v.Err)),
				"address", req.Address,
			)
			return ctx, v
		}
		if next != nil {
			ctx = next
		}
	}
	return ctx, Allow
}

// AuthenticateStage authenticates the request. An authenticated identity
// and its claims are attached to the context. Anonymous requests pass
// unless requireAuth is set, in which case they are answered with 401
// and a bare Bearer challenge.
func AuthenticateStage(a *auth.Authenticator, requireAuth bool) Stage {
	realm := a.Config().Realm
	return func(ctx context.Context, req *Request, sink response.Sink) (context.Context, Verdict) {
		res := a.Authenticate(ctx, req.Headers, sink)
		switch res.Status {
		case auth.StatusAuthenticated:
			ctx = auth.ContextWithIdentity(ctx, res.Identity)
			ctx = auth.ContextWithClaims(ctx, res.Claims)
			return ctx, Allow
		case auth.StatusRejected:
			return ctx, Verdict{Status: res.HTTPStatus(), Err: res.Err}
		}
		if !requireAuth {
			return ctx, Allow
		}
		sink.SetHeader(response.HeaderWWWAuthenticate, bareChallenge(realm))
		sink.SetStatus(http.StatusUnauthorized)
		return ctx, Verdict{
			Status: http.StatusUnauthorized,
			Err:    sserr.New(sserr.CodeAuthentication, "auth: authentication required"),
		}
	}
}

// RateLimitStage counts the request against l. Callers with an identity
// in the context are keyed by identity ID, others by address.
func RateLimitStage(l *ratelimit.Limiter) Stage {
	return func(ctx context.Context, req *Request, sink response.Sink) (context.Context, Verdict) {
		caller := ratelimit.Caller{Address: req.Address}
		if identity, ok := auth.IdentityFromContext(ctx); ok {
			caller.UserID = identity.ID()
		}
		d, err := l.Check(ctx, caller, sink)
		if err != nil {
			return ctx, Reject(err)
		}
		if !d.Allowed {
			return ctx, Verdict{Status: http.StatusTooManyRequests, Err: d.Err}
		}
		return ctx, Allow
	}
}

func bareChallenge(realm string) string {
	if realm == "" {
		return "Bearer"
	}
	return fmt.Sprintf("Bearer realm=%q", realm)
}
