package game

import (
	"encoding/json"
	"strconv"
)

// Payload is a decoded JSON object from the backend. Only the documented
// field names are read from it; everything else is ignored.
type Payload map[string]interface{}

// Empty reports whether the payload carries nothing, which is how failed
// calls are represented.
func (p Payload) Empty() bool { return len(p) == 0 }

// Has reports whether key is present.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns key as an integer, truncating fractional values.
func (p Payload) Int(key string) (int64, bool) {
	return toInt(p[key])
}

// IntOr returns key as an integer or def.
func (p Payload) IntOr(key string, def int64) int64 {
	if v, ok := p.Int(key); ok {
		return v
	}
	return def
}

// String returns key as a string, formatting numbers.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return ""
	}
}

// Bool returns key as a bool.
func (p Payload) Bool(key string) (bool, bool) {
	switch v := p[key].(type) {
	case bool:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n != 0, err == nil
	default:
		return false, false
	}
}

// Object returns key as a nested payload.
func (p Payload) Object(key string) (Payload, bool) {
	m, ok := p[key].(map[string]interface{})
	return Payload(m), ok
}

// Objects returns key as a list of nested payloads. Elements that are not
// objects are skipped.
func (p Payload) Objects(key string) ([]Payload, bool) {
	list, ok := p[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]Payload, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Payload(m))
		}
	}
	return out, true
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
