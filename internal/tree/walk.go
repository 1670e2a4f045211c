package tree

import "strings"

// Pair is one leaf reached by Walk: the member keys leading to it and the
// leaf value.
type Pair struct {
	Path  []string
	Value Value
}

// Name joins the path with sep.
func (p Pair) Name(sep string) string {
	return strings.Join(p.Path, sep)
}

// Walk descends through nested objects and calls fn for every leaf. Arrays
// and scalars are leaves; an empty object is a leaf as well so nothing is
// silently dropped. Walk on a non-object calls fn once with an empty path.
func Walk(v Value, fn func(Pair)) {
	walk(nil, v, fn)
}

func walk(prefix []string, v Value, fn func(Pair)) {
	if v.kind != Object || len(v.members) == 0 {
		fn(Pair{Path: prefix, Value: v})
		return
	}
	for _, m := range v.members {
		path := make([]string, len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = m.Key
		walk(path, m.Value, fn)
	}
}

// Flatten returns every leaf of v as a (joined path, value) pair, in
// document order.
func Flatten(v Value, sep string) []Member {
	var out []Member
	Walk(v, func(p Pair) {
		out = append(out, Member{Key: p.Name(sep), Value: p.Value})
	})
	return out
}
