// Package postgres provides a traced PostgreSQL client and an identity
// resolver backed by a users table.
//
// The client uses pgxpool for connection pooling. Failed connections are
// replaced by the pool and the health check period keeps it healthy, so
// callers do not retry connection-level errors themselves.
//
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	resolver, err := postgres.NewResolver(client)
//
// For testing, use [NewFromPool] to inject a mock pool:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, &postgres.Config{Database: "testdb"})
//
// All operations create OpenTelemetry spans with the database semantic
// attributes (db.system, db.name, db.statement). Statements are truncated
// to 100 characters in spans.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for this package.
const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/postgres"

// Pool is the subset of pool operations the [Client] uses. It is
// satisfied by [*pgxpool.Pool] and by pgxmock pools.
type Pool interface {
	// QueryRow defers errors until the returned row is scanned.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client is a PostgreSQL client with connection pooling, tracing and
// platform error codes. It is safe for concurrent use; create one per
// database.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, creates the connection pool and pings the
// database.
//
// Error codes returned:
//   - [sserr.CodeInternalConfiguration]: invalid configuration or TLS setup
//   - [sserr.CodeUnavailableDependency]: cannot connect to the database
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"postgres: failed to configure TLS")
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}

	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: dbName,
	}, nil
}

// NewFromPool wraps an existing [Pool]. cfg is stored, not validated; nil
// means a zero Config.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}
}

// WithTracerProvider replaces the tracer, mainly so tests can record spans.
func (c *Client) WithTracerProvider(tp trace.TracerProvider) *Client {
	c.tracer = tp.Tracer(tracerName)
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config { return *c.config }

// QueryRowScan executes a single-row query and scans it into dest inside
// one span. [pgx.ErrNoRows] is returned unwrapped and is not recorded as a
// span error.
func (c *Client) QueryRowScan(ctx context.Context, sql string, args []any, dest ...any) error {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)

	err := c.pool.QueryRow(ctx, sql, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		finishSpan(span, nil)
		return err
	}
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: query failed")
	}
	return nil
}

// Health pings the database, applying [DefaultHealthTimeout] when ctx has
// no deadline. Failures are [sserr.CodeUnavailableDependency].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases all pool resources. Close waits for acquired connections
// to be released.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
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

// wrapError maps a database error to a platform error: a deadline is
// [sserr.CodeTimeoutStore], everything else [sserr.CodeInternalStore].
func wrapError(err error, message string) *sserr.Error {
	return sserr.WrapStore(err, sserr.CodeInternalStore, message)
}
