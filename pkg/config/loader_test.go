package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

type testSecret string

func (s testSecret) String() string { return "[REDACTED]" }

type limitConfig struct {
	Scope       string        `env:"SCOPE" envDefault:"ratelimit" yaml:"scope" json:"scope"`
	MaxRequests int           `env:"MAX_REQUESTS" envDefault:"60" yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `env:"WINDOW" envDefault:"60s" yaml:"window" json:"window"`
	Enabled     bool          `env:"ENABLED" envDefault:"true" yaml:"enabled" json:"enabled"`
}

type tokenConfig struct {
	SigningKey     testSecret `env:"SIGNING_KEY" yaml:"signing_key" required:"true"`
	RequiredClaims []string   `env:"REQUIRED_CLAIMS" envDefault:"sub,exp,iat" yaml:"required_claims"`
}

type serverConfig struct {
	Addr      string      `env:"ADDR" envDefault:":8080" yaml:"addr"`
	Token     tokenConfig `env:"AUTH" yaml:"auth"`
	RateLimit limitConfig `env:"RATELIMIT" yaml:"ratelimit"`
}

type numericConfig struct {
	Small  int32   `env:"SMALL" envDefault:"25"`
	Count  uint    `env:"COUNT"`
	Factor float64 `env:"FACTOR"`
}

type checkedConfig struct {
	MaxRequests int `env:"MAX_REQUESTS"`
}

func (c *checkedConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return sserr.Configuration("max requests must be positive")
	}
	return nil
}

type plainCheckedConfig struct {
	Name string `env:"NAME"`
}

func (c *plainCheckedConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func noEnv() LookupFunc { return env(nil) }

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load_RejectsNonStruct(t *testing.T) {
	t.Parallel()
	var nilPtr *limitConfig
	n := 3

	for name, cfg := range map[string]any{
		"nil pointer":           nilPtr,
		"value":                 limitConfig{},
		"pointer to non-struct": &n,
	} {
		err := New().WithLookup(noEnv()).Load(cfg)
		require.Error(t, err, name)
		assert.True(t, sserr.IsConfiguration(err), name)
	}
}

func TestLoader_Load_Defaults(t *testing.T) {
	t.Parallel()
	var cfg limitConfig
	require.NoError(t, New().WithLookup(noEnv()).Load(&cfg))

	assert.Equal(t, "ratelimit", cfg.Scope)
	assert.Equal(t, 60, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.True(t, cfg.Enabled)
}

func TestLoader_Load_Defaults_KeepExistingValues(t *testing.T) {
	t.Parallel()
	cfg := limitConfig{Scope: "login", MaxRequests: 5}
	require.NoError(t, New().WithLookup(noEnv()).Load(&cfg))

	assert.Equal(t, "login", cfg.Scope)
	assert.Equal(t, 5, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)
}

func TestLoader_Load_YAMLFile(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "limits.yaml", "scope: api\nmax_requests: 100\nwindow: 30s\n")

	var cfg limitConfig
	require.NoError(t, New().WithLookup(noEnv()).WithFile(path).Load(&cfg))

	assert.Equal(t, "api", cfg.Scope)
	assert.Equal(t, 100, cfg.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Window)
}

func TestLoader_Load_YMLExtension(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "limits.yml", "max_requests: 7\n")

	var cfg limitConfig
	require.NoError(t, New().WithLookup(noEnv()).WithFile(path).Load(&cfg))
	assert.Equal(t, 7, cfg.MaxRequests)
}

func TestLoader_Load_JSONFile(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "limits.json", `{"scope":"json","max_requests":9}`)

	var cfg limitConfig
	require.NoError(t, New().WithLookup(noEnv()).WithFile(path).Load(&cfg))
	assert.Equal(t, "json", cfg.Scope)
	assert.Equal(t, 9, cfg.MaxRequests)
}

func TestLoader_Load_MissingFile(t *testing.T) {
	t.Parallel()
	var cfg limitConfig
	err := New().WithLookup(noEnv()).WithFile(filepath.Join(t.TempDir(), "absent.yaml")).Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.MaxRequests)
}

func TestLoader_Load_FileErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
	}{
		{"unsupported extension", writeTestFile(t, "limits.toml", "scope = 'x'")},
		{"directory traversal", "../etc/limits.yaml"},
		{"invalid yaml", writeTestFile(t, "bad.yaml", "scope: [unterminated")},
		{"invalid json", writeTestFile(t, "bad.json", "{not json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg limitConfig
			err := New().WithLookup(noEnv()).WithFile(tt.path).Load(&cfg)
			require.Error(t, err)
			assert.True(t, sserr.IsConfiguration(err))
		})
	}
}

func TestLoader_Load_PriorityOrder(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "limits.yaml", "scope: file\nmax_requests: 10\nwindow: 10s\n")

	var cfg limitConfig
	err := New().
		WithEnvPrefix("gk").
		WithFile(path).
		WithLookup(env(map[string]string{"GK_MAX_REQUESTS": "20"})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Scope, "file overrides default")
	assert.Equal(t, 20, cfg.MaxRequests, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.Window)
	assert.True(t, cfg.Enabled, "default kept when nothing overrides it")
}

func TestLoader_Load_NestedEnvPrefix(t *testing.T) {
	t.Parallel()
	var cfg serverConfig
	err := New().
		WithEnvPrefix("GATEKEEPER").
		WithLookup(env(map[string]string{
			"GATEKEEPER_AUTH_SIGNING_KEY":       "s3cret",
			"GATEKEEPER_AUTH_REQUIRED_CLAIMS":   "sub, exp ,jti,",
			"GATEKEEPER_RATELIMIT_MAX_REQUESTS": "3",
			"GATEKEEPER_RATELIMIT_WINDOW":       "2m",
			"GATEKEEPER_RATELIMIT_ENABLED":      "false",
		})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, testSecret("s3cret"), cfg.Token.SigningKey)
	assert.Equal(t, []string{"sub", "exp", "jti"}, cfg.Token.RequiredClaims)
	assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoader_Load_NestedYAML(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "gatekeeper.yaml", `
addr: ":9090"
auth:
  signing_key: from-file
ratelimit:
  scope: api
  max_requests: 100
`)
	var cfg serverConfig
	require.NoError(t, New().WithLookup(noEnv()).WithFile(path).Load(&cfg))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, testSecret("from-file"), cfg.Token.SigningKey)
	assert.Equal(t, []string{"sub", "exp", "iat"}, cfg.Token.RequiredClaims)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
}

func TestLoader_Load_NumericKinds(t *testing.T) {
	t.Parallel()
	var cfg numericConfig
	err := New().WithLookup(env(map[string]string{
		"COUNT":  "12",
		"FACTOR": "0.5",
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(25), cfg.Small)
	assert.Equal(t, uint(12), cfg.Count)
	assert.InDelta(t, 0.5, cfg.Factor, 1e-9)
}

func TestLoader_Load_InvalidEnvValues(t *testing.T) {
	t.Parallel()
	for key, value := range map[string]string{
		"MAX_REQUESTS": "sixty",
		"ENABLED":      "maybe",
		"WINDOW":       "a while",
	} {
		var cfg limitConfig
		err := New().WithLookup(env(map[string]string{key: value})).Load(&cfg)
		require.Error(t, err, key)
		assert.True(t, sserr.IsConfiguration(err), key)
	}
}

func TestLoader_Load_RequiredField(t *testing.T) {
	t.Parallel()
	var cfg serverConfig
	err := New().WithLookup(noEnv()).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
	assert.Contains(t, err.Error(), "Token.SigningKey")
}

func TestLoader_Load_Validator(t *testing.T) {
	t.Parallel()

	var ok checkedConfig
	require.NoError(t, New().WithLookup(env(map[string]string{"MAX_REQUESTS": "1"})).Load(&ok))

	var bad checkedConfig
	err := New().WithLookup(env(map[string]string{"MAX_REQUESTS": "0"})).Load(&bad)
	require.Error(t, err)
	assert.True(t, sserr.IsConfiguration(err), "sserr errors pass through unchanged")

	var plain plainCheckedConfig
	err = New().WithLookup(noEnv()).Load(&plain)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))
}

func TestLoader_WithLookup_NilRestoresProcessEnv(t *testing.T) {
	t.Setenv("GKTEST_SCOPE", "from-process")

	var cfg limitConfig
	require.NoError(t, New().WithLookup(nil).WithEnvPrefix("GKTEST").Load(&cfg))
	assert.Equal(t, "from-process", cfg.Scope)
}

func TestMustLoad(t *testing.T) {
	t.Parallel()
	cfg := MustLoad[limitConfig](New().WithLookup(noEnv()))
	assert.Equal(t, 60, cfg.MaxRequests)

	assert.Panics(t, func() {
		MustLoad[serverConfig](New().WithLookup(noEnv()))
	})
}
