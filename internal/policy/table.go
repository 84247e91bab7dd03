package policy

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"retaincheck/internal/graph"
)

// Table is the safety table: member types that never close a retain cycle,
// either anywhere (generally safe) or only inside a given container type.
// It is immutable after construction.
type Table struct {
	generallySafe map[graph.QualifiedName]struct{}
	safeInside    map[graph.QualifiedName][]graph.QualifiedName
}

// NewTable copies its inputs.
func NewTable(generallySafe []graph.QualifiedName, safeInside map[graph.QualifiedName][]graph.QualifiedName) *Table {
	t := &Table{
		generallySafe: make(map[graph.QualifiedName]struct{}, len(generallySafe)),
		safeInside:    make(map[graph.QualifiedName][]graph.QualifiedName, len(safeInside)),
	}
	for _, q := range generallySafe {
		t.generallySafe[q] = struct{}{}
	}
	for container, members := range safeInside {
		t.safeInside[container] = slices.Clone(members)
	}
	return t
}

func q(s string) graph.QualifiedName { return graph.ParseQualifiedName(s) }

// DefaultTable returns the UIKit table.
func DefaultTable() *Table {
	return NewTable(
		[]graph.QualifiedName{q("UIKit.UIColor"), q("UIKit.UIImage")},
		map[graph.QualifiedName][]graph.QualifiedName{
			q("UIKit.UIView"):                 {q("CoreAnimation.CALayer")},
			q("UIKit.UIApplicationDelegate"):  {q("UIKit.UIWindow")},
			q("UIKit.IUIApplicationDelegate"): {q("UIKit.UIWindow")},
			q("UIKit.IUIWindowSceneDelegate"): {q("UIKit.UIWindow")},
		},
	)
}

// IsSafeType reports whether memberType itself is generally safe.
func (t *Table) IsSafeType(memberType *graph.TypeNode) bool {
	if memberType == nil {
		return false
	}
	_, ok := t.generallySafe[memberType.Name]
	return ok
}

// IsGenerallySafe reports whether memberType is safe to hold strongly inside
// containing: some interface or ancestor of containing (itself included) maps
// to a target that memberType is, or derives from.
func (t *Table) IsGenerallySafe(containing, memberType *graph.TypeNode) bool {
	if containing == nil || memberType == nil || len(t.safeInside) == 0 {
		return false
	}
	for _, iface := range containing.AllInterfaces {
		if t.matches(iface, memberType) {
			return true
		}
	}
	for anc := range graph.Ancestors(containing) {
		if t.matches(anc, memberType) {
			return true
		}
	}
	return false
}

func (t *Table) matches(container, memberType *graph.TypeNode) bool {
	targets, ok := t.safeInside[container.Name]
	if !ok {
		return false
	}
	for _, target := range targets {
		if graph.HasAncestor(memberType, target) {
			return true
		}
	}
	return false
}

// GenerallySafe returns the generally safe names in sorted order.
func (t *Table) GenerallySafe() []graph.QualifiedName {
	return sortedNames(maps.Keys(t.generallySafe))
}

// SafeWhenInsideOf returns a copy of the container mapping.
func (t *Table) SafeWhenInsideOf() map[graph.QualifiedName][]graph.QualifiedName {
	out := make(map[graph.QualifiedName][]graph.QualifiedName, len(t.safeInside))
	for k, v := range t.safeInside {
		out[k] = slices.Clone(v)
	}
	return out
}

// Containers returns the container names of SafeWhenInsideOf in sorted order.
func (t *Table) Containers() []graph.QualifiedName {
	return sortedNames(maps.Keys(t.safeInside))
}

func sortedNames(seq iter.Seq[graph.QualifiedName]) []graph.QualifiedName {
	out := slices.Collect(seq)
	slices.SortFunc(out, func(a, b graph.QualifiedName) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}
