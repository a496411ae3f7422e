package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for this package.
const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/redis"

// Cmdable is the subset of go-redis commands the [Client] wraps. It is
// satisfied by [*redis.Client] and by mocks in unit tests.
type Cmdable interface {
	redis.Scripter

	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client is a Redis client with OpenTelemetry tracing and platform error
// codes. It is safe for concurrent use; create one per Redis instance.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, opens a pooled go-redis client and pings it.
//
// Error codes returned:
//   - [sserr.CodeInternalConfiguration]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: Redis is unreachable
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: failed to connect to server")
	}

	return &Client{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: opts.DB,
	}, nil
}

func (c *Config) options() (*redis.Options, error) {
	if c.URI != "" {
		opts, err := redis.ParseURL(c.URI)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
				"redis: failed to parse connection URI")
		}
		opts.PoolSize = c.PoolSize
		opts.MinIdleConns = c.MinIdleConns
		opts.MaxRetries = c.MaxRetries
		opts.DialTimeout = c.DialTimeout
		opts.ReadTimeout = c.ReadTimeout
		opts.WriteTimeout = c.WriteTimeout
		return opts, nil
	}

	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:     c.Password.Value(),
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// NewFromClient wraps an existing [Cmdable]. cfg is stored, not
// validated; nil means a zero Config.
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
//	client := redis.NewFromClient(rdb, nil)
func NewFromClient(cmdable Cmdable, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
}

// WithTracerProvider replaces the tracer, mainly so tests can record spans.
func (c *Client) WithTracerProvider(tp trace.TracerProvider) *Client {
	c.tracer = tp.Tracer(tracerName)
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config { return *c.config }

// Get returns the value at key. A missing key yields an error for which
// [IsNil] reports true.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, span := c.startSpan(ctx, "Get", "GET "+key)
	val, err := c.cmdable.Get(ctx, key).Result()
	finishSpan(span, ignoreNil(err))
	if err != nil {
		return "", wrapError(err, "redis: get failed")
	}
	return val, nil
}

// Set stores value at key with the given expiration (0 means none).
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set", fmt.Sprintf("SET %s PX %d", key, expiration.Milliseconds()))
	err := c.cmdable.Set(ctx, key, value, expiration).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "redis: set failed")
	}
	return nil
}

// RunScript runs a Lua script with EVALSHA, falling back to EVAL when
// the server has not cached it, and returns the reply as integers.
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) ([]int64, error) {
	ctx, span := c.startSpan(ctx, "EvalSha", fmt.Sprintf("EVALSHA %s %d %v", script.Hash(), len(keys), keys))
	val, err := script.Run(ctx, c.cmdable, keys, args...).Int64Slice()
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "redis: script failed")
	}
	return val, nil
}

// Health pings Redis, applying [DefaultHealthTimeout] when ctx has no
// deadline. Failures are [sserr.CodeUnavailableDependency].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: health check failed")
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

// IsNil reports whether err means the key does not exist.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// startSpan starts a client span with the database semantic-convention
// attributes (db.system, db.redis.database_index, db.statement).
func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ignoreNil drops redis.Nil so a cache miss is not recorded as a span
// error.
func ignoreNil(err error) error {
	if IsNil(err) {
		return nil
	}
	return err
}

// wrapError maps a Redis error to a platform error. A deadline is
// [sserr.CodeTimeoutStore] (retryable); everything else, cancellation
// included, is [sserr.CodeInternalStore].
func wrapError(err error, message string) *sserr.Error {
	return sserr.WrapStore(err, sserr.CodeInternalStore, message)
}
