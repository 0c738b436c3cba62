package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var errNotObject = errors.New("body must be a JSON object")

// payload is an untyped ingest body. Accessors coerce loosely typed client
// values and treat absent or null keys as unset.
type payload map[string]any

func decodePayload(body []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errNotObject
	}
	return p, nil
}

// lookup resolves key, following dots into nested objects.
func (p payload) lookup(key string) (any, bool) {
	var cur any = map[string]any(p)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func (p payload) String(key string) string {
	v, ok := p.lookup(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// StringPtr is String but nil when the key is unset.
func (p payload) StringPtr(key string) *string {
	if _, ok := p.lookup(key); !ok {
		return nil
	}
	s := p.String(key)
	return &s
}

// Float coerces numbers, numeric strings and booleans. NaN and infinities
// are unset: they would poison every AVG over the column.
func (p payload) Float(key string) *float64 {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		return &f
	case bool:
		f := 0.0
		if t {
			f = 1
		}
		return &f
	}
	return nil
}

func (p payload) Int(key string) *int64 {
	f := p.Float(key)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

func (p payload) Bool(key string) *bool {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		b = t != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

func (p payload) Object(key string) map[string]any {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// Time accepts RFC 3339 strings or epoch milliseconds.
func (p payload) Time(key string) *time.Time {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	var t time.Time
	switch x := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil
		}
		t = parsed
	case float64:
		t = time.UnixMilli(int64(x))
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

// missing returns the keys that are absent, null, empty strings, or
// objects and arrays where a scalar is required.
func (p payload) missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		v, ok := p.lookup(k)
		if !ok {
			out = append(out, k)
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				out = append(out, k)
			}
		case map[string]any, []any:
			out = append(out, k)
		}
	}
	return out
}

// without returns a copy of p minus the given top-level keys, or nil when
// nothing is left.
func (p payload) without(keys ...string) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MissingFieldError reports required payload keys that were not supplied.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return joinFields(e.Fields) + " " + verb(len(e.Fields)) + " required"
}

func verb(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}

// joinFields renders "a", "a and b", or "a, b, and c".
func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
	}
}

// requireFields returns a *MissingFieldError naming every required key p
// lacks, listed in the order of required.
func requireFields(p payload, required []string) error {
	if m := p.missing(required...); len(m) > 0 {
		return &MissingFieldError{Fields: m}
	}
	return nil
}
