// Package classify answers type questions the rules share: is a type a
// bridge type (wrapper around a native object), a delegate, or System.Object.
package classify

import (
	"retaincheck/internal/graph"
)

const wrapperArg = "IsWrapper"

// Classifier holds per-type answers computed once for a graph.
// It is safe for concurrent use.
type Classifier struct {
	markers  []graph.QualifiedName
	bridge   []bool
	delegate []bool
	types    []*graph.TypeNode
}

// New precomputes bridge and delegate flags for every type of g.
func New(g *graph.Graph, markers []graph.QualifiedName) *Classifier {
	c := &Classifier{
		markers:  markers,
		bridge:   make([]bool, len(g.Types)),
		delegate: make([]bool, len(g.Types)),
		types:    g.Types,
	}
	done := make([]bool, len(g.Types))
	var fill func(t *graph.TypeNode)
	fill = func(t *graph.TypeNode) {
		if done[t.Index] {
			return
		}
		done[t.Index] = true
		c.bridge[t.Index] = HasBridgeMarker(t, markers)
		c.delegate[t.Index] = t.Is(graph.DelegateName)
		if t.Base != nil {
			fill(t.Base)
			c.bridge[t.Index] = c.bridge[t.Index] || c.bridge[t.Base.Index]
			c.delegate[t.Index] = c.delegate[t.Index] || c.delegate[t.Base.Index]
		}
	}
	for _, t := range g.Types {
		fill(t)
	}
	return c
}

func (c *Classifier) owns(t *graph.TypeNode) bool {
	return t != nil && t.Index >= 0 && t.Index < len(c.types) && c.types[t.Index] == t
}

// IsBridgeType reports whether t or one of its base types carries a bridge marker.
func (c *Classifier) IsBridgeType(t *graph.TypeNode) bool {
	if t == nil {
		return false
	}
	if c.owns(t) {
		return c.bridge[t.Index]
	}
	return graph.FirstAncestor(t, func(cur *graph.TypeNode) bool {
		return HasBridgeMarker(cur, c.markers)
	}) != nil
}

// IsDelegateType reports whether t derives from System.Delegate.
func (c *Classifier) IsDelegateType(t *graph.TypeNode) bool {
	if t == nil {
		return false
	}
	if c.owns(t) {
		return c.delegate[t.Index]
	}
	return graph.HasAncestor(t, graph.DelegateName)
}

// IsObject reports whether t is exactly System.Object.
func IsObject(t *graph.TypeNode) bool {
	return t.Is(graph.ObjectName)
}

// HasBridgeMarker inspects only t's own annotations. A marker counts when its
// second of two positional arguments is true, or its IsWrapper argument is true.
func HasBridgeMarker(t *graph.TypeNode, markers []graph.QualifiedName) bool {
	for i := range t.Annotations {
		a := &t.Annotations[i]
		if !isMarker(a, markers) {
			continue
		}
		if a.MatchArg(1, wrapperArg, graph.Value.IsTrue) {
			return true
		}
	}
	return false
}

func isMarker(a *graph.Annotation, markers []graph.QualifiedName) bool {
	for _, m := range markers {
		if a.Is(m) {
			return true
		}
	}
	return false
}
