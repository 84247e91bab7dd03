package graph

import "iter"

// Ancestors yields t, its base, the base's base and so on.
func Ancestors(t *TypeNode) iter.Seq[*TypeNode] {
	return func(yield func(*TypeNode) bool) {
		for cur := t; cur != nil; cur = cur.Base {
			if !yield(cur) {
				return
			}
		}
	}
}

// FirstAncestor returns the first type on the chain starting at t for which
// match holds, or nil.
func FirstAncestor(t *TypeNode, match func(*TypeNode) bool) *TypeNode {
	for cur := range Ancestors(t) {
		if match(cur) {
			return cur
		}
	}
	return nil
}

// HasAncestor reports whether some type on the chain starting at t is exactly q.
func HasAncestor(t *TypeNode, q QualifiedName) bool {
	return FirstAncestor(t, func(cur *TypeNode) bool { return cur.Name == q }) != nil
}
