package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// incrementIfBelow reads the counter and, when it is below the limit,
// writes count+1 with a fresh TTL in the same step. Reply: {count, 0|1}.
var incrementIfBelow = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {current, 0}
end
redis.call('SET', KEYS[1], current + 1, 'PX', ARGV[2])
return {current, 1}
`)

// CounterStore is a rate-limit counter store on Redis. It implements
// ratelimit.AtomicCounterStore; the check-and-increment runs as one Lua
// script, so concurrent requests on different replicas cannot both slip
// under the limit.
type CounterStore struct {
	client *Client
	prefix string
}

// CounterOption configures a [CounterStore].
type CounterOption func(*CounterStore)

// WithKeyPrefix prefixes every key the store touches.
func WithKeyPrefix(prefix string) CounterOption {
	return func(s *CounterStore) { s.prefix = prefix }
}

// NewCounterStore creates a CounterStore on client.
func NewCounterStore(client *Client, opts ...CounterOption) *CounterStore {
	s := &CounterStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the counter at key, 0 when it is absent or expired.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		if IsNil(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeInternalStore, "redis: counter %q holds a non-integer value", key)
	}
	return n, nil
}

// Set writes value at key with the given TTL.
func (s *CounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl)
}

// IncrementIfBelow atomically increments the counter at key when it is
// below limit and resets its TTL. It returns the count seen before the
// call and whether it incremented.
func (s *CounterStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	reply, err := s.client.RunScript(ctx, incrementIfBelow, []string{s.prefix + key}, limit, ttl.Milliseconds())
	if err != nil {
		return 0, false, err
	}
	if len(reply) != 2 {
		return 0, false, sserr.Newf(sserr.CodeInternalStore, "redis: unexpected counter script reply %v", reply)
	}
	return reply[0], reply[1] == 1, nil
}
