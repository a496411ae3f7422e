package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// time.Duration has Kind() == Int64 and must be told apart from plain
// integers.
var durationType = reflect.TypeOf(time.Duration(0))

// fieldVisitor is called for every settable leaf field of a struct.
// Nested structs are descended into; their env tag extends envPrefix.
type fieldVisitor func(field reflect.Value, sf reflect.StructField, envPrefix string) error

func walkFields(rv reflect.Value, envPrefix string, visit fieldVisitor) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walkFields(field, joinEnv(envPrefix, sf.Tag.Get("env")), visit); err != nil {
				return err
			}
			continue
		}

		if err := visit(field, sf, envPrefix); err != nil {
			return err
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// applyDefaults sets zero-valued fields to their envDefault tag value.
func applyDefaults(rv reflect.Value) error {
	return walkFields(rv, "", func(field reflect.Value, sf reflect.StructField, _ string) error {
		tag, ok := sf.Tag.Lookup("envDefault")
		if !ok || tag == "" || !field.IsZero() {
			return nil
		}
		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
		return nil
	})
}

// applyEnv sets fields from the environment variables named by their env
// tags, qualified by the loader prefix and any enclosing struct tags.
func applyEnv(rv reflect.Value, prefix string, lookup LookupFunc) error {
	return walkFields(rv, prefix, func(field reflect.Value, sf reflect.StructField, envPrefix string) error {
		envTag := sf.Tag.Get("env")
		if envTag == "" {
			return nil
		}
		envKey := joinEnv(envPrefix, envTag)
		val, ok := lookup(envKey)
		if !ok {
			return nil
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, envKey)
		}
		return nil
	})
}

// setField parses value into field. Supported kinds: string (and named
// string types such as auth.Secret), bool, signed and unsigned integers,
// float64, time.Duration and []string (comma-separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		// MakeSlice keeps named slice types assignable.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
