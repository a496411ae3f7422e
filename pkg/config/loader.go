// Package config loads gatekeeper configuration from struct tag defaults,
// an optional YAML or JSON file, and environment variables. Values are
// resolved in priority order:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file   (medium priority)
//	Environment variables   (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable
//   - `envDefault:"value"` sets a default when the field is zero-valued
//   - `required:"true"` fails validation if the field remains zero after loading
//
// Nested structs contribute their own env tag as a prefix, so a
// RateLimit struct tagged `env:"RATELIMIT"` holding a field tagged
// `env:"MAX_REQUESTS"` reads RATELIMIT_MAX_REQUESTS.
//
// # Usage
//
//	type ServerConfig struct {
//	    Addr string      `env:"ADDR" envDefault:":8080" yaml:"addr"`
//	    Auth auth.Config `env:"AUTH" yaml:"auth"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("GATEKEEPER").WithFile("gatekeeper.yaml"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// LookupFunc resolves an environment variable. It has the signature of
// os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Loader builds and executes configuration loading. Use [New] to create
// a Loader and configure it before calling [Loader.Load].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookup    LookupFunc
}

// New creates a [Loader] that reads the process environment with no
// prefix and no file.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix sets a prefix prepended (with an underscore) to every
// environment variable name. The prefix is uppercased; an empty prefix
// disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path to a YAML (.yaml, .yml) or JSON (.json) file.
// A missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment source, mainly for tests. A nil
// function restores os.LookupEnv.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn == nil {
		fn = os.LookupEnv
	}
	l.lookup = fn
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, then
// validates required fields and calls Validate when cfg implements
// [Validator].
//
// Loading failures carry [sserr.CodeInternalConfiguration]; validation
// failures carry [sserr.CodeValidationRequired] or [sserr.CodeValidation]
// unless the Validator returned an *sserr.Error of its own.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.Configuration("config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.Configuration("config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	lookup := l.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(rv, l.envPrefix, lookup); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad creates a zero T, loads configuration into it and returns it.
// It panics if loading or validation fails, so it belongs in main.
//
//	cfg := config.MustLoad[ServerConfig](config.New().WithEnvPrefix("GATEKEEPER"))
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.Configuration("config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Configurationf(
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}
