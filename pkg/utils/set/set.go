package set

import (
	"cmp"
	"slices"
)

// Set is an unordered collection of unique keys
type Set[K comparable] map[K]struct{}

// New creates a set holding keys
func New[K comparable](keys ...K) Set[K] {
	s := make(Set[K], len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Has reports whether key is in s
func (s Set[K]) Has(key K) bool {
	_, ok := s[key]
	return ok
}

// Add inserts key
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

// Delete removes key
func (s Set[K]) Delete(key K) {
	delete(s, key)
}

// Len returns the number of keys
func (s Set[K]) Len() int {
	return len(s)
}

// Difference returns a new set of keys in s but not in other
func (s Set[K]) Difference(other Set[K]) Set[K] {
	diff := make(Set[K])
	for k := range s {
		if !other.Has(k) {
			diff.Add(k)
		}
	}
	return diff
}

// Sorted returns the keys of s in ascending order
func Sorted[K cmp.Ordered](s Set[K]) []K {
	keys := make([]K, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
