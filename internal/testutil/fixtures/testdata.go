// Package fixtures holds shared test data for the gatekeeper packages.
package fixtures

// Token and identity values.
const (
	Subject    = "user-abc-123"
	AltSubject = "user-def-456"
	Issuer     = "https://auth.gatekeeper.test"
	Audience   = "gatekeeper-api"

	// SigningKey is a deliberately weak HMAC key for tests only.
	SigningKey = "test-signing-key"
)

// Rate-limit values.
const (
	Scope       = "api"
	CallerAddr  = "203.0.113.7"
	MaxRequests = 3
)

// UsersSchema creates the table the Postgres identity resolver reads.
const UsersSchema = `CREATE TABLE IF NOT EXISTS users (
    id           text PRIMARY KEY,
    email        text,
    display_name text,
    disabled     boolean NOT NULL DEFAULT false,
    attributes   jsonb
)`

// SeedUsers inserts one active and one disabled user.
const SeedUsers = `INSERT INTO users (id, email, display_name, disabled, attributes) VALUES
    ('user-abc-123', 'ada@example.test', 'Ada', false, '{"role": "admin"}'),
    ('user-def-456', 'bob@example.test', 'Bob', true, NULL)
ON CONFLICT (id) DO NOTHING`

// ConfigYAML is a minimal gatekeeper configuration file.
const ConfigYAML = `auth:
  signing_key: test-signing-key
  issuer: https://auth.gatekeeper.test
  audience: gatekeeper-api
ratelimit:
  scope: api
  max_requests: 3
  window: 1m
`
