package changes

import "strings"

// Flat is an ordered mapping of dot-paths to leaf values.
type Flat struct {
	paths  []string
	values map[string]Value
}

// Paths returns the paths in traversal order.
func (f Flat) Paths() []string { return f.paths }

// Len returns the number of paths.
func (f Flat) Len() int { return len(f.paths) }

// Get returns the value stored at path.
func (f Flat) Get(path string) (Value, bool) {
	v, ok := f.values[path]
	return v, ok
}

// Has reports whether path is present.
func (f Flat) Has(path string) bool {
	_, ok := f.values[path]
	return ok
}

// Flatten walks nested maps and emits one entry per leaf. Arrays and times
// are leaves; keys are visited in sorted order so the result does not depend
// on how the input was built. A non-map root yields an empty mapping.
func Flatten(v Value) Flat {
	f := Flat{values: make(map[string]Value)}
	if v.kind != KindMap {
		return f
	}
	f.walk("", v)
	return f
}

// FlattenAny converts in with FromAny and flattens the result.
func FlattenAny(in any) Flat {
	return Flatten(FromAny(in))
}

func (f *Flat) walk(prefix string, v Value) {
	for _, k := range v.Keys() {
		child := v.m[k]
		path := JoinPath(prefix, k)
		if child.kind == KindMap {
			f.walk(path, child)
			continue
		}
		f.paths = append(f.paths, path)
		f.values[path] = child
	}
}

// JoinPath appends key to prefix as one segment. Dots and backslashes inside
// key are escaped, so a literal "a.b" key and a nested a -> b never share a
// path.
func JoinPath(prefix, key string) string {
	if strings.ContainsAny(key, `.\`) {
		key = strings.NewReplacer(`\`, `\\`, ".", `\.`).Replace(key)
	}
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// SplitPath breaks a dot-path into its unescaped segments.
func SplitPath(path string) []string {
	if !strings.Contains(path, `\`) {
		return strings.Split(path, ".")
	}
	var (
		segs []string
		cur  strings.Builder
	)
	for i := 0; i < len(path); i++ {
		switch c := path[i]; {
		case c == '\\' && i+1 < len(path):
			i++
			cur.WriteByte(path[i])
		case c == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(segs, cur.String())
}

// LastSegment returns the unescaped final segment of path.
func LastSegment(path string) string {
	segs := SplitPath(path)
	return segs[len(segs)-1]
}
