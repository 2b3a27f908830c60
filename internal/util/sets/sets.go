// Package sets provides a tiny generic set on top of Go maps. Reconcile
// passes track which monitor and workspace names are already claimed; a
// named type reads better at those sites than bare struct{}-valued maps.
package sets

// Set records membership for comparable keys.
type Set[T comparable] map[T]struct{}

// New returns a set holding the given values.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	s.Insert(vals...)
	return s
}

// Insert adds the values to the set.
func (s Set[T]) Insert(vals ...T) {
	for _, v := range vals {
		s[v] = struct{}{}
	}
}

// Has reports whether v is in the set.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}
