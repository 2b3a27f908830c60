// Package normalization maps free-form configuration strings onto typed
// enumerations. Policy files are hand-edited, so lookups tolerate case and
// surrounding whitespace.
package normalization

import "strings"

// Normalizer resolves raw strings to values of an enum type T.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
}

// NewNormalizer builds a normalizer from canonical key to value pairs.
// Unrecognized input resolves to fallback.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	cleaned := make(map[string]T, len(values))
	for k, v := range values {
		cleaned[clean(k)] = v
	}
	return &Normalizer[T]{values: cleaned, fallback: fallback}
}

// NewFromValues builds a normalizer whose accepted spellings are the string
// forms of the values themselves. Fits enums whose constants double as their
// configuration-file spelling.
func NewFromValues[T ~string](fallback T, values ...T) *Normalizer[T] {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[string(v)] = v
	}
	return NewNormalizer(m, fallback)
}

// Normalize resolves raw to its enum value, or the fallback when unknown.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[clean(raw)]; ok {
		return v
	}
	return n.fallback
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
