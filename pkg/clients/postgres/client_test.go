package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

func newMockClient(t *testing.T) (pgxmock.PgxPoolIface, *Client) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewFromPool(mock, &Config{Database: "testdb"})
}

func assertCode(t *testing.T, err error, want sserr.Code) {
	t.Helper()
	var ssErr *sserr.Error
	if !errors.As(err, &ssErr) {
		t.Fatalf("error type = %T, want *sserr.Error", err)
	}
	if ssErr.Code != want {
		t.Errorf("error code = %q, want %q", ssErr.Code, want)
	}
}

func TestNewFromPool(t *testing.T) {
	mock, client := newMockClient(t)

	if client.pool != mock {
		t.Error("client does not hold the injected pool")
	}
	if client.databaseName != "testdb" {
		t.Errorf("databaseName = %q, want %q", client.databaseName, "testdb")
	}
	if client.tracer == nil {
		t.Error("tracer is nil")
	}

	nilCfg := NewFromPool(mock, nil)
	if nilCfg.config == nil || nilCfg.databaseName != "" {
		t.Error("nil config should become a zero Config")
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URI: "mysql://localhost/db"})
	if err == nil {
		t.Fatal("NewClient() expected error, got nil")
	}
	if !sserr.IsConfiguration(err) {
		t.Errorf("NewClient() error = %v, want configuration error", err)
	}
}

func TestClient_QueryRowScan_Error(t *testing.T) {
	mock, client := newMockClient(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	var id string
	err := client.QueryRowScan(context.Background(), "SELECT id FROM nonexistent", nil, &id)
	if err == nil {
		t.Fatal("QueryRowScan() expected error, got nil")
	}
	assertCode(t, err, sserr.CodeInternalStore)
}

func TestClient_QueryRowScan_Timeout(t *testing.T) {
	mock, client := newMockClient(t)
	mock.ExpectQuery("SELECT").WillReturnError(context.DeadlineExceeded)

	var id string
	err := client.QueryRowScan(context.Background(), "SELECT pg_sleep(10)", nil, &id)
	if err == nil {
		t.Fatal("QueryRowScan() expected error, got nil")
	}
	assertCode(t, err, sserr.CodeTimeoutStore)
	if !sserr.IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestClient_QueryRowScan_PgError(t *testing.T) {
	mock, client := newMockClient(t)
	pgErr := &pgconn.PgError{Code: "42501", Message: "permission denied for table users"}
	mock.ExpectQuery("SELECT email").WithArgs("u1").WillReturnError(pgErr)

	var email string
	err := client.QueryRowScan(context.Background(), "SELECT email FROM users WHERE id = $1", []any{"u1"}, &email)
	if err == nil {
		t.Fatal("QueryRowScan() expected error, got nil")
	}
	assertCode(t, err, sserr.CodeInternalStore)

	var target *pgconn.PgError
	if !errors.As(err, &target) || target.Code != "42501" {
		t.Error("original PgError should stay reachable through the chain")
	}
}

func TestClient_QueryRowScan(t *testing.T) {
	mock, client := newMockClient(t)
	mock.ExpectQuery("SELECT email FROM users WHERE id").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"email"}).AddRow("u1@example.com"))

	var email string
	err := client.QueryRowScan(context.Background(), "SELECT email FROM users WHERE id = $1", []any{"u1"}, &email)
	if err != nil {
		t.Fatalf("QueryRowScan() error: %v", err)
	}
	if email != "u1@example.com" {
		t.Errorf("email = %q, want %q", email, "u1@example.com")
	}
}

func TestClient_QueryRowScan_NoRows(t *testing.T) {
	mock, client := newMockClient(t)
	exporter := tracetest.NewInMemoryExporter()
	client.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	mock.ExpectQuery("SELECT email").WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"email"}))

	var email string
	err := client.QueryRowScan(context.Background(), "SELECT email FROM users WHERE id = $1", []any{"ghost"}, &email)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("QueryRowScan() error = %v, want pgx.ErrNoRows", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("span count = %d, want 1", len(spans))
	}
	if len(spans[0].Events) != 0 {
		t.Error("no-rows should not be recorded as a span error")
	}
}

func TestClient_Health(t *testing.T) {
	mock, client := newMockClient(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	err := client.Health(context.Background())
	if err == nil {
		t.Fatal("Health() expected error, got nil")
	}
	assertCode(t, err, sserr.CodeUnavailableDependency)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestWrapError(t *testing.T) {
	if wrapError(nil, "x") != nil {
		t.Error("wrapError(nil) should be nil")
	}
	if got := wrapError(context.DeadlineExceeded, "x"); got.Code != sserr.CodeTimeoutStore {
		t.Errorf("deadline code = %q, want %q", got.Code, sserr.CodeTimeoutStore)
	}
	if got := wrapError(context.Canceled, "x"); got.Code != sserr.CodeInternalStore {
		t.Errorf("canceled code = %q, want %q", got.Code, sserr.CodeInternalStore)
	}
	cause := errors.New("boom")
	got := wrapError(cause, "x")
	if got.Code != sserr.CodeInternalStore || !errors.Is(got, cause) {
		t.Errorf("wrapError(generic) = %v, want internal store wrapping cause", got)
	}
}
