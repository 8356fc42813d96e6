package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration read from env or YAML text. Both Go duration
// strings ("45s", "1m30s") and bare integers, taken as seconds, are accepted:
// SUPABASE_TIMEOUT=30 and SUPABASE_TIMEOUT=30s mean the same thing.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which koanf's decoder
// calls for every Duration field.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return fmt.Errorf("duration cannot be negative: %s", s)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redactedSecret = "[REDACTED]"

// Secret holds a credential such as the Supabase service-role key. It prints
// and serializes as [REDACTED]; only Value exposes it.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "config.Secret(" + redactedSecret + ")"
}

// Value returns the credential.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON keeps credentials out of config dumps and JSON logs.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
