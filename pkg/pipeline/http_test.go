package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
)

func TestMiddleware_AuthenticatedRequestReachesHandler(t *testing.T) {
	t.Parallel()
	a := newAuthenticator(t)
	p := New(AuthenticateStage(a, true), RateLimitStage(newLimiter(t, nil)))

	var gotID string
	handler := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.MustIdentityFromContext(r.Context())
		gotID = identity.ID()
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, a, fixtures.Subject))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, fixtures.Subject, gotID)
	assert.Equal(t, "3", rec.Header().Get(response.HeaderRateLimitLimit))
	assert.Equal(t, "2", rec.Header().Get(response.HeaderRateLimitRemaining))
}

func TestMiddleware_RejectionDoesNotCallHandler(t *testing.T) {
	t.Parallel()
	a := newAuthenticator(t)
	p := New(AuthenticateStage(a, true))

	called := false
	handler := p.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="api"`, rec.Header().Get(response.HeaderWWWAuthenticate))
	assert.Contains(t, rec.Body.String(), "authentication required")
}

func TestMiddleware_RateLimited(t *testing.T) {
	t.Parallel()
	p := New(RateLimitStage(newLimiter(t, nil)))
	handler := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i <= fixtures.MaxRequests; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = fixtures.CallerAddr + ":51234"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(response.HeaderRetryAfter))
}

func TestMiddleware_StoreFailureHidesDetails(t *testing.T) {
	t.Parallel()
	p := New(RateLimitStage(newLimiter(t, failingStore{err: assert.AnError})))
	handler := p.Middleware()(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestHTTPAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		trust     bool
		remote    string
		forwarded string
		want      string
	}{
		{"remote host", false, "198.51.100.1:4000", "", "198.51.100.1"},
		{"forwarded ignored when untrusted", false, "198.51.100.1:4000", "203.0.113.7", "198.51.100.1"},
		{"first forwarded hop", true, "198.51.100.1:4000", " 203.0.113.7 , 10.0.0.1", "203.0.113.7"},
		{"empty forwarded falls back", true, "198.51.100.1:4000", "", "198.51.100.1"},
		{"ipv6 remote", false, "[2001:db8::1]:443", "", "2001:db8::1"},
		{"no port", false, "198.51.100.1", "", "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set(headerForwardedFor, tt.forwarded)
			}
			p := New().WithTrustForwardedFor(tt.trust)
			require.Equal(t, tt.want, p.httpAddress(r))
		})
	}
}
