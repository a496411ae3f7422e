package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Resolver is an [auth.IdentityResolver] that looks token subjects up in
// a users table:
//
//	CREATE TABLE users (
//	    id           text PRIMARY KEY,
//	    email        text,
//	    display_name text,
//	    disabled     boolean NOT NULL DEFAULT false,
//	    attributes   jsonb
//	);
//
// A disabled user resolves as not found. The attributes object becomes
// the identity's claims.
type Resolver struct {
	client *Client
	query  string
}

var _ auth.IdentityResolver = (*Resolver)(nil)

// NewResolver creates a Resolver reading the client's configured
// UsersTable. The table name is validated by [Config.Validate]; a name
// that fails validation here is a configuration error.
func NewResolver(client *Client) (*Resolver, error) {
	table := client.config.UsersTable
	if table == "" {
		table = DefaultUsersTable
	}
	parts, err := usersTableIdentifier(table)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		client: client,
		query: fmt.Sprintf(
			"SELECT id, COALESCE(email, ''), COALESCE(display_name, ''), disabled, COALESCE(attributes, '{}'::jsonb) FROM %s WHERE id = $1",
			pgx.Identifier(parts).Sanitize()),
	}, nil
}

// Resolve implements [auth.IdentityResolver]. A failed lookup is returned
// as the error, never as found=false.
func (r *Resolver) Resolve(ctx context.Context, subject string) (auth.Identity, bool, error) {
	var (
		id, email, name string
		disabled        bool
		rawAttrs        []byte
	)
	err := r.client.QueryRowScan(ctx, r.query, []any{subject}, &id, &email, &name, &disabled, &rawAttrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if disabled {
		return nil, false, nil
	}

	var attrs map[string]any
	if len(rawAttrs) > 0 {
		if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
			return nil, false, sserr.Wrapf(err, sserr.CodeInternalStore,
				"postgres: attributes of user %q are not a JSON object", subject)
		}
	}
	return auth.NewUserIdentity(id, email, name, attrs), true, nil
}
