//go:build integration

// Package postgres_test runs the client and identity resolver against a
// real PostgreSQL container.
//
//	go test -v -race -tags=integration ./pkg/clients/postgres/...
package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil/containers"
	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// setupDatabase starts a container, creates the users table and seeds
// it. Everything is cleaned up when the test completes.
func setupDatabase(t *testing.T) *postgres.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	result, err := containers.StartPostgres(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := result.Container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate postgres container: %v", termErr)
		}
	})

	client, err := postgres.NewClient(ctx, postgres.Config{URI: result.ConnString, MaxConns: 5, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(client.Close)

	conn, err := pgx.Connect(ctx, result.ConnString)
	if err != nil {
		t.Fatalf("failed to connect for seeding: %v", err)
	}
	defer conn.Close(ctx)
	for _, stmt := range []string{fixtures.UsersSchema, fixtures.SeedUsers} {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to prepare users table: %v", err)
		}
	}
	return client
}

func TestIntegration_Resolver(t *testing.T) {
	client := setupDatabase(t)
	ctx := context.Background()

	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health() error: %v", err)
	}

	r, err := postgres.NewResolver(client)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}

	id, found, err := r.Resolve(ctx, fixtures.Subject)
	if err != nil || !found {
		t.Fatalf("Resolve(%q) = found %v, err %v; want found", fixtures.Subject, found, err)
	}
	user, ok := id.(*auth.UserIdentity)
	if !ok {
		t.Fatalf("identity type = %T, want *auth.UserIdentity", id)
	}
	if user.Email() != "ada@example.test" {
		t.Errorf("Email() = %q, want %q", user.Email(), "ada@example.test")
	}
	if got := id.Claims()["role"]; got != "admin" {
		t.Errorf("role claim = %v, want admin", got)
	}

	if _, found, err := r.Resolve(ctx, fixtures.AltSubject); err != nil || found {
		t.Errorf("disabled user: found=%v err=%v, want not found", found, err)
	}
	if _, found, err := r.Resolve(ctx, "nobody"); err != nil || found {
		t.Errorf("unknown user: found=%v err=%v, want not found", found, err)
	}
}

func TestIntegration_Resolver_Timeout(t *testing.T) {
	client := setupDatabase(t)
	r, err := postgres.NewResolver(client)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, found, err := r.Resolve(ctx, fixtures.Subject)
	if err == nil {
		t.Fatal("Resolve() with expired context expected error, got nil")
	}
	if found {
		t.Error("found must be false on error")
	}
	if !sserr.IsTimeout(err) {
		t.Errorf("error = %v, want timeout", err)
	}
}
