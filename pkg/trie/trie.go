// Package trie stores values under slash-separated routes such as
// "groq/llama-3.1-8b" and matches lookups against wildcard patterns:
//   - "groq/llama"  - exact route
//   - "groq/+/fast" - "+" matches exactly one segment
//   - "groq/*"      - "*" matches one or more trailing segments
//
// Exact segments win over "+", and "+" wins over "*".
package trie

import (
	"errors"
	"slices"
	"strings"
)

// ErrInvalidPattern is returned when "*" is not the last segment of a pattern.
var ErrInvalidPattern = errors.New("trie: \"*\" must be the last segment")

// Trie maps route patterns to values of type T. The zero value is empty and
// ready to use. A Trie is not safe for concurrent mutation.
type Trie[T any] struct {
	children map[string]*Trie[T]
	one      *Trie[T] // "+"
	rest     *Trie[T] // "*"
	set      bool
	value    T
}

// New returns an empty Trie.
func New[T any]() *Trie[T] {
	return &Trie[T]{}
}

func split(path string) (first, subseq string) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// Set stores a value at pattern through fn, which receives a pointer to the
// slot and whether it already held a value. An error from fn leaves the slot
// unset.
func (t *Trie[T]) Set(pattern string, fn func(ptr *T, existed bool) error) error {
	node, err := t.node(pattern)
	if err != nil {
		return err
	}
	if err := fn(&node.value, node.set); err != nil {
		return err
	}
	node.set = true
	return nil
}

// SetValue stores value at pattern, replacing any previous value.
func (t *Trie[T]) SetValue(pattern string, value T) error {
	return t.Set(pattern, func(ptr *T, _ bool) error {
		*ptr = value
		return nil
	})
}

func (t *Trie[T]) node(pattern string) (*Trie[T], error) {
	if pattern == "" {
		return t, nil
	}
	first, subseq := split(pattern)
	switch first {
	case "+":
		if t.one == nil {
			t.one = &Trie[T]{}
		}
		return t.one.node(subseq)
	case "*":
		if subseq != "" {
			return nil, ErrInvalidPattern
		}
		if t.rest == nil {
			t.rest = &Trie[T]{}
		}
		return t.rest, nil
	}
	if t.children == nil {
		t.children = make(map[string]*Trie[T])
	}
	ch, ok := t.children[first]
	if !ok {
		ch = &Trie[T]{}
		t.children[first] = ch
	}
	return ch.node(subseq)
}

// Get returns the value whose pattern best matches path.
func (t *Trie[T]) Get(path string) (T, bool) {
	_, v, ok := t.Match(path)
	return v, ok
}

// Match returns the pattern that matched path along with its value.
func (t *Trie[T]) Match(path string) (pattern string, value T, ok bool) {
	var segs []string
	if node := t.match(path, &segs); node != nil {
		return strings.Join(segs, "/"), node.value, true
	}
	var zero T
	return "", zero, false
}

func (t *Trie[T]) match(path string, segs *[]string) *Trie[T] {
	if path == "" {
		if t.set {
			return t
		}
		return nil
	}
	first, subseq := split(path)
	n := len(*segs)
	if ch, ok := t.children[first]; ok {
		*segs = append(*segs, first)
		if node := ch.match(subseq, segs); node != nil {
			return node
		}
		*segs = (*segs)[:n]
	}
	if t.one != nil {
		*segs = append(*segs, "+")
		if node := t.one.match(subseq, segs); node != nil {
			return node
		}
		*segs = (*segs)[:n]
	}
	if t.rest != nil && t.rest.set {
		*segs = append(*segs, "*")
		return t.rest
	}
	return nil
}

// Walk calls fn for every stored pattern in sorted order.
func (t *Trie[T]) Walk(fn func(pattern string, value T)) {
	type entry struct {
		pattern string
		value   T
	}
	var entries []entry
	t.walk(nil, func(path []string, node *Trie[T]) {
		entries = append(entries, entry{strings.Join(path, "/"), node.value})
	})
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.pattern, b.pattern) })
	for _, e := range entries {
		fn(e.pattern, e.value)
	}
}

func (t *Trie[T]) walk(path []string, fn func([]string, *Trie[T])) {
	if t.set {
		fn(path, t)
	}
	for seg, ch := range t.children {
		ch.walk(append(slices.Clip(path), seg), fn)
	}
	if t.one != nil {
		t.one.walk(append(slices.Clip(path), "+"), fn)
	}
	if t.rest != nil {
		t.rest.walk(append(slices.Clip(path), "*"), fn)
	}
}

// Len returns the number of stored patterns.
func (t *Trie[T]) Len() int {
	n := 0
	t.walk(nil, func([]string, *Trie[T]) { n++ })
	return n
}
