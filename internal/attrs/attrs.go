package attrs

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Map is an opaque attribute map attached to payments and journal entries.
// It is validated once at the boundary and otherwise never interpreted.
type Map map[string]string

const (
	MaxKeys        = 32
	MaxKeyLength   = 64
	MaxValueLength = 512
)

var ErrInvalid = errors.New("attrs: invalid metadata")

// Validate enforces size limits and key shape.
func (m Map) Validate() error {
	if len(m) > MaxKeys {
		return fmt.Errorf("%w: more than %d keys", ErrInvalid, MaxKeys)
	}
	for k, v := range m {
		if k == "" || len(k) > MaxKeyLength {
			return fmt.Errorf("%w: key %q length", ErrInvalid, k)
		}
		if strings.ContainsAny(k, " \t\r\n") {
			return fmt.Errorf("%w: key %q contains whitespace", ErrInvalid, k)
		}
		if len(v) > MaxValueLength {
			return fmt.Errorf("%w: value for %q too long", ErrInvalid, k)
		}
	}
	return nil
}

// Clone returns an independent copy (nil stays nil).
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy with k set to v.
func (m Map) With(k, v string) Map {
	out := m.Clone()
	if out == nil {
		out = Map{}
	}
	out[k] = v
	return out
}

// Value stores the map as JSON (JSONB column).
func (m Map) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan reads a JSON column.
func (m *Map) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("attrs: cannot scan %T", src)
	}
	out := Map{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*m = out
	return nil
}
