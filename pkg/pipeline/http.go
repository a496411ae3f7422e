package pipeline

import (
	"net"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
)

const headerForwardedFor = "X-Forwarded-For"

// Middleware returns an HTTP middleware that runs the pipeline before
// next. Response signals written by the stages (rate limit headers,
// WWW-Authenticate) are set on w. A rejected request is answered with the
// verdict status and a plain-text message; an allowed one reaches next
// with the enriched context.
func (p *Pipeline) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sink := response.ForWriter(w)
			req := &Request{Headers: r.Header, Address: p.httpAddress(r)}

			ctx, v := p.Run(r.Context(), req, sink)
			if !v.Allowed {
				http.Error(w, rejectionMessage(v), v.Status)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (p *Pipeline) httpAddress(r *http.Request) string {
	if p.trustForwardedFor {
		if hop := firstHop(r.Header.Get(headerForwardedFor)); hop != "" {
			return hop
		}
	}
	return hostOnly(r.RemoteAddr)
}

func firstHop(forwarded string) string {
	first, _, _ := strings.Cut(forwarded, ",")
	return strings.TrimSpace(first)
}

// hostOnly strips the port from addr. Addresses that do not parse as
// host:port are returned unchanged.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// rejectionMessage returns the client-facing text for v. Server-side
// failures get the generic status text so store details never leak.
func rejectionMessage(v Verdict) string {
	e, ok := sserr.AsError(v.Err)
	if !ok || sserr.IsServerError(e) {
		return http.StatusText(v.Status)
	}
	return e.Message
}
