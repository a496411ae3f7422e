package auth

// Secret is a string that redacts itself in String(), GoString(), and
// MarshalText() so signing keys do not leak into logs or serialized
// configuration. Use [Secret.Value] where the raw bytes are required.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
