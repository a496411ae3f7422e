// Package response defines the response-signal sink through which the
// authenticator and rate limiter report status codes and headers to the
// host transport without depending on it.
package response

import (
	"net/http"
	"sync"
)

// Header names written by the gatekeeper components.
const (
	HeaderWWWAuthenticate    = "WWW-Authenticate"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// Sink receives response signals. SetStatus may be called at most once
// per request by a rejecting component; SetHeader may be called any
// number of times.
type Sink interface {
	SetHeader(name, value string)
	SetStatus(code int)
}

// Discard is a Sink that drops every signal.
var Discard Sink = discard{}

type discard struct{}

func (discard) SetHeader(string, string) {}
func (discard) SetStatus(int)            {}

// HeaderSink writes headers into an http.Header and remembers the
// status instead of writing it, so the host can decide how to render the
// rejection.
type HeaderSink struct {
	Header http.Header
	Status int
}

// ForWriter returns a HeaderSink backed by w's header map. Headers set on
// the sink appear on the response once the host writes it.
func ForWriter(w http.ResponseWriter) *HeaderSink {
	return &HeaderSink{Header: w.Header()}
}

// SetHeader implements Sink.
func (s *HeaderSink) SetHeader(name, value string) {
	if s.Header == nil {
		s.Header = make(http.Header)
	}
	s.Header.Set(name, value)
}

// SetStatus implements Sink.
func (s *HeaderSink) SetStatus(code int) { s.Status = code }

// Recorder is an in-memory Sink safe for concurrent use. It is used by
// the gRPC interceptors and by tests.
type Recorder struct {
	mu      sync.Mutex
	headers map[string]string
	status  int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{headers: make(map[string]string)}
}

// SetHeader implements Sink.
func (r *Recorder) SetHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[http.CanonicalHeaderKey(name)] = value
}

// SetStatus implements Sink.
func (r *Recorder) SetStatus(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
}

// Header returns the last value set for name, or "".
func (r *Recorder) Header(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[http.CanonicalHeaderKey(name)]
}

// Headers returns a copy of all recorded headers keyed by canonical name.
func (r *Recorder) Headers() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// Status returns the recorded status, or 0 if none was set.
func (r *Recorder) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
