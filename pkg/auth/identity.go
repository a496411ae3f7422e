// Package auth authenticates bearer-token requests and issues, refreshes
// and verifies the tokens it accepts.
//
// An [Authenticator] runs a fixed state machine per request: extract the
// credential header, match it against the configured scheme pattern,
// decode and verify the token, validate its claims, and resolve the
// subject through a host-supplied [IdentityResolver]. The outcome is a
// [Result] value, never a panic or a transport-specific error; rejection
// signals (status and WWW-Authenticate) are written to a response.Sink so
// that any HTTP or gRPC layer can render them.
//
// No identity is cached per token. Every request is re-validated.
package auth

import (
	"context"
	"maps"
	"sync"
)

// IdentityType represents the type of authenticated identity.
type IdentityType string

const (
	// IdentityTypeUser represents a human user.
	IdentityTypeUser IdentityType = "user"

	// IdentityTypeService represents a service calling on its own behalf.
	IdentityTypeService IdentityType = "service"

	// IdentityTypeSystem represents an internal process such as a
	// background job.
	IdentityTypeSystem IdentityType = "system"
)

// String returns the string representation of the identity type.
func (t IdentityType) String() string {
	return string(t)
}

// Valid reports whether the identity type is one of the recognized values.
func (t IdentityType) Valid() bool {
	switch t {
	case IdentityTypeUser, IdentityTypeService, IdentityTypeSystem:
		return true
	default:
		return false
	}
}

// Identity is the application identity a token subject resolves to. It is
// opaque to the authenticator beyond its ID.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Identity interface {
	// ID returns the unique identifier, used as the sub claim when a
	// token is issued for this identity.
	ID() string

	// Type returns the category of identity.
	Type() IdentityType

	// Claims returns a copy of the identity's attributes.
	Claims() map[string]any
}

// IdentityResolver maps a validated subject claim to an identity.
//
// Resolve returns found=false when the subject is unknown. A non-nil
// error means the lookup itself failed (e.g., the user store is down) and
// says nothing about the subject.
type IdentityResolver interface {
	Resolve(ctx context.Context, subject string) (identity Identity, found bool, err error)
}

// ResolverFunc adapts a function to [IdentityResolver].
type ResolverFunc func(ctx context.Context, subject string) (Identity, bool, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, subject string) (Identity, bool, error) {
	return f(ctx, subject)
}

// StaticResolver resolves subjects from an in-memory set of identities.
// It is safe for concurrent use.
type StaticResolver struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewStaticResolver creates a StaticResolver holding the given identities.
func NewStaticResolver(identities ...Identity) *StaticResolver {
	r := &StaticResolver{identities: make(map[string]Identity, len(identities))}
	for _, id := range identities {
		r.identities[id.ID()] = id
	}
	return r
}

// Add registers or replaces an identity.
func (r *StaticResolver) Add(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.identities == nil {
		r.identities = make(map[string]Identity)
	}
	r.identities[identity.ID()] = identity
}

// Remove forgets the identity with the given ID.
func (r *StaticResolver) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, id)
}

// Resolve implements [IdentityResolver]. It never returns an error.
func (r *StaticResolver) Resolve(_ context.Context, subject string) (Identity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[subject]
	return id, ok, nil
}

// BasicIdentity is a simple, immutable [Identity].
type BasicIdentity struct {
	id     string
	idType IdentityType
	claims map[string]any
}

// NewBasicIdentity creates a BasicIdentity. The claims map is copied.
func NewBasicIdentity(id string, idType IdentityType, claims map[string]any) *BasicIdentity {
	return &BasicIdentity{
		id:     id,
		idType: idType,
		claims: copyClaims(claims),
	}
}

// ID returns the unique identifier of the identity.
func (b *BasicIdentity) ID() string { return b.id }

// Type returns the identity type.
func (b *BasicIdentity) Type() IdentityType { return b.idType }

// Claims returns a shallow copy of the identity's claims.
func (b *BasicIdentity) Claims() map[string]any { return copyClaims(b.claims) }

// UserIdentity is an [Identity] for a human user with contact details,
// as returned by user-store backed resolvers.
type UserIdentity struct {
	BasicIdentity
	email       string
	displayName string
}

// NewUserIdentity creates a UserIdentity. The email and display name are
// also exposed through Claims as "email" and "name" when non-empty.
func NewUserIdentity(id, email, displayName string, claims map[string]any) *UserIdentity {
	c := copyClaims(claims)
	if email != "" {
		c["email"] = email
	}
	if displayName != "" {
		c["name"] = displayName
	}
	return &UserIdentity{
		BasicIdentity: BasicIdentity{id: id, idType: IdentityTypeUser, claims: c},
		email:         email,
		displayName:   displayName,
	}
}

// Email returns the user's email address.
func (u *UserIdentity) Email() string { return u.email }

// DisplayName returns the user's display name.
func (u *UserIdentity) DisplayName() string { return u.displayName }

func copyClaims(claims map[string]any) map[string]any {
	out := make(map[string]any, len(claims))
	maps.Copy(out, claims)
	return out
}
