// Package changes detects what changed between two snapshots of a record.
//
// Snapshots are loosely typed nested data (usually decoded JSON), so the
// package works on a small tagged Value instead of reflection. Everything here
// is pure: no I/O, no shared state, and no error returns. Malformed input
// degrades to a best-effort result.
package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindAbsent marks a field that does not exist on one side of a diff.
	// It is the zero value and is distinct from KindNull, "" and 0.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindTime
	KindArray
	KindMap
)

var kindNames = map[Kind]string{
	KindAbsent: "absent",
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindTime:   "time",
	KindArray:  "array",
	KindMap:    "map",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged union over the shapes a record snapshot can contain.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    time.Time
	arr  []Value
	m    map[string]Value
}

// Absent returns the missing-field marker.
func Absent() Value { return Value{} }

// Null returns an explicit null.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64. NaN and infinities are not representable in
// snapshots and are kept as their string form.
func Number(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return String(strconv.FormatFloat(n, 'g', -1, 64))
	}
	return Value{kind: KindNumber, n: n}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Time wraps a timestamp. Times are leaves: the Normalizer never descends
// into them and equality uses their canonical string form.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Array wraps a list of values.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Map wraps a record.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, m: fields}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is Absent. It lets encoding/json drop absent
// sides of a change with the omitzero tag option.
func (v Value) IsZero() bool { return v.kind == KindAbsent }

// IsEmpty reports whether v carries no displayable content: absent, null,
// an empty or blank string, or an empty array or map.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent, KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	case KindArray:
		return len(v.arr) == 0
	case KindMap:
		return len(v.m) == 0
	default:
		return false
	}
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsTime returns the timestamp held by v.
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

// Items returns a copy of the elements of an array value, or nil.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return slices.Clone(v.arr)
}

// Field returns the named field of a map value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	f, ok := v.m[name]
	return f, ok
}

// Keys returns the field names of a map value in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup resolves a dot-path inside nested maps. A path that runs through a
// missing key or a non-map value yields Absent.
func (v Value) Lookup(path string) Value {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range SplitPath(path) {
		next, ok := cur.Field(seg)
		if !ok {
			return Value{}
		}
		cur = next
	}
	return cur
}

// Canonical returns the deterministic serialization used for normalized
// equality. Structurally equal values always produce the same string.
func (v Value) Canonical() string {
	var buf bytes.Buffer
	v.writeCanonical(&buf)
	return buf.String()
}

func (v Value) writeCanonical(buf *bytes.Buffer) {
	switch v.kind {
	case KindAbsent:
		buf.WriteString("<absent>")
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(formatNumber(v.n))
	case KindString:
		buf.WriteString(strconv.Quote(v.s))
	case KindTime:
		buf.WriteString(v.t.UTC().Format(time.RFC3339Nano))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.writeCanonical(buf)
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(k))
			buf.WriteByte(':')
			v.m[k].writeCanonical(buf)
		}
		buf.WriteByte('}')
	}
}

// String renders v for logs and plain display: strings unquoted, times in
// RFC3339, composites in canonical form.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent, KindNull:
		return ""
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return v.Canonical()
	}
}

// Equal applies the normalized-equality rule: times compare by canonical
// string, arrays and maps by deterministic serialization, scalars directly.
// Values of different kinds are never equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	default:
		return a.Canonical() == b.Canonical()
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// -----------------------------------------------------------------------------
// Conversion from loosely typed data
// -----------------------------------------------------------------------------

// FromAny converts decoded JSON or plain Go data into a Value. It never
// fails: unknown types are stored as their deterministic JSON serialization
// (or fmt form when that fails) so equal inputs still normalize identically.
func FromAny(in any) Value {
	switch x := in.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case time.Time:
		return Time(x)
	case *time.Time:
		if x == nil {
			return Null()
		}
		return Time(*x)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			fields[k] = FromAny(item)
		}
		return Map(fields)
	case map[string]Value:
		return Map(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Array(items...)
	case []Value:
		return Array(x...)
	case []map[string]any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Array(items...)
	case []string:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = String(item)
		}
		return Array(items...)
	case json.RawMessage:
		var v Value
		if err := v.UnmarshalJSON(x); err == nil {
			return v
		}
		return String(string(x))
	case fmt.Stringer:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null()
		}
		return String(x.String())
	}
	return fromUnknown(in)
}

// fromUnknown round-trips structs and other typed data through JSON so they
// become maps and arrays; anything JSON rejects keeps its fmt form.
func fromUnknown(in any) Value {
	data, err := json.Marshal(in)
	if err != nil {
		return String(fmt.Sprintf("%v", in))
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return String(string(data))
	}
	return v
}

// -----------------------------------------------------------------------------
// JSON encoding
// -----------------------------------------------------------------------------

// MarshalJSON encodes v as plain JSON. Times become RFC3339Nano strings.
// Absent encodes as null; use the omitzero tag option to drop it instead.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

func (v Value) toAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(formatNumber(v.n))
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.toAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.toAny()
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON decodes arbitrary JSON into v. Numbers keep full precision
// until they are converted to float64.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = FromAny(raw)
	return nil
}
