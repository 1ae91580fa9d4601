package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawItem is a remote JSON object kept schemaless so that fields the migrator
// does not know about still reach the destination.
type RawItem map[string]any

// Get walks a dotted path ("billingInfo.contactDetails.email"). Numeric segments
// index into arrays.
func (r RawItem) Get(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case RawItem:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String returns the value at path as a string. Numbers are formatted without
// exponent so ids survive the round trip.
func (r RawItem) String(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Int returns the value at path as an int, 0 when absent or not numeric
func (r RawItem) Int(path string) int {
	v, ok := r.Get(path)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Decimal returns the value at path as a decimal. Amounts are usually strings on
// the wire; plain numbers are accepted too.
func (r RawItem) Decimal(path string) (decimal.Decimal, bool) {
	v, ok := r.Get(path)
	if !ok {
		return decimal.Zero, false
	}
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// Bool returns the value at path as a bool
func (r RawItem) Bool(path string) bool {
	v, ok := r.Get(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Time parses an RFC3339 timestamp at path
func (r RawItem) Time(path string) (time.Time, bool) {
	s := r.String(path)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Object returns the nested object at path
func (r RawItem) Object(path string) (RawItem, bool) {
	v, ok := r.Get(path)
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return RawItem(t), true
	case RawItem:
		return t, true
	}
	return nil, false
}

// Slice returns the array at path
func (r RawItem) Slice(path string) []any {
	v, ok := r.Get(path)
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

// Objects returns the objects of the array at path, skipping non-object elements
func (r RawItem) Objects(path string) []RawItem {
	raw := r.Slice(path)
	out := make([]RawItem, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case map[string]any:
			out = append(out, RawItem(t))
		case RawItem:
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the string elements of the array at path
func (r RawItem) Strings(path string) []string {
	raw := r.Slice(path)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Set writes v at a dotted path, creating intermediate objects
func (r RawItem) Set(path string, v any) {
	segs := strings.Split(path, ".")
	node := map[string]any(r)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			if ri, isRaw := node[seg].(RawItem); isRaw {
				next = ri
			} else {
				next = map[string]any{}
				node[seg] = next
			}
		}
		node = next
	}
	node[segs[len(segs)-1]] = v
}

// Clone returns a deep copy of r
func (r RawItem) Clone() RawItem {
	if r == nil {
		return nil
	}
	return RawItem(cloneValue(map[string]any(r)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case RawItem:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Without returns a deep copy with the given top-level or dotted fields removed
func (r RawItem) Without(paths ...string) RawItem {
	out := r.Clone()
	for _, p := range paths {
		out.Delete(p)
	}
	return out
}

// Delete removes the field at path if present
func (r RawItem) Delete(path string) {
	segs := strings.Split(path, ".")
	node := map[string]any(r)
	for _, seg := range segs[:len(segs)-1] {
		switch next := node[seg].(type) {
		case map[string]any:
			node = next
		case RawItem:
			node = next
		default:
			return
		}
	}
	delete(node, segs[len(segs)-1])
}

// FirstString returns the first non-empty string found among paths
func (r RawItem) FirstString(paths ...string) string {
	for _, p := range paths {
		if s := r.String(p); s != "" {
			return s
		}
	}
	return ""
}

// ParseRawItem decodes a JSON object
func ParseRawItem(data []byte) (RawItem, error) {
	var item RawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return item, nil
}
