package persephone

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Params is the open set of backend-specific knobs (seasonality mode, ARIMA
// orders, ...). The harness forwards it untouched; each backend reads the
// keys it understands and rejects the rest. Values may arrive as native Go
// numbers (YAML, JSON) or as strings (command-line "key=value").
type Params map[string]any

// ParseParams builds Params from "key=value" pairs.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrInvalidParams, pair)
		}
		p[key] = strings.TrimSpace(value)
	}
	return p, nil
}

// Clone returns a shallow copy. Cloning nil yields nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// CheckKeys fails on any key not in allowed.
func (p Params) CheckKeys(allowed ...string) error {
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	var unknown []string
	for k := range p {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown keys %v (accepted: %v)", ErrInvalidParams, unknown, allowed)
	}
	return nil
}

// Float reads key as a float64.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
	}
	return f, nil
}

// Int reads key as an integer; fractional numbers are rejected.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
	}
	return n, nil
}

// String reads key as a string.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: %s: expected a string, got %T", ErrInvalidParams, key, v)
}

// Bool reads key as a boolean.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("%w: %s: expected a boolean, got %T", ErrInvalidParams, key, v)
}

// Ints reads key as a list of integers. Strings like "1,1,0" and "[1, 1, 0]"
// are accepted.
func (p Params) Ints(key string, def []int) ([]int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}

	var items []any
	switch list := v.(type) {
	case []int:
		return append([]int(nil), list...), nil
	case []any:
		items = list
	case []float64:
		for _, f := range list {
			items = append(items, f)
		}
	case string:
		trimmed := strings.Trim(strings.TrimSpace(list), "[]()")
		for _, part := range strings.Split(trimmed, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	default:
		return nil, fmt.Errorf("%w: %s: expected a list of integers, got %T", ErrInvalidParams, key, v)
	}

	out := make([]int, len(items))
	for i, item := range items {
		n, err := toInt(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidParams, key, i, err)
		}
		out[i] = n
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected an integer, got %v", f)
	}
	return int(f), nil
}
