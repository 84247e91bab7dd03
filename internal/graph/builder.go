package graph

import (
	"errors"
	"fmt"

	"retaincheck/internal/source"
)

var (
	// ErrCycle is returned when base types or interfaces inherit from themselves.
	ErrCycle = errors.New("inheritance cycle")
	// ErrDuplicateID is returned when two types share an id.
	ErrDuplicateID = errors.New("duplicate type id")
)

// TypeSpec describes a type by string references, the way graph documents do.
type TypeSpec struct {
	ID          string
	Name        QualifiedName
	Kind        TypeKind
	IsValueType bool
	Declared    bool
	Annotations []Annotation
	Base        string
	Interfaces  []string
	Elem        string
	TypeArgs    []string
	Decl        source.Span
}

type MemberSpec struct {
	ID             string
	Kind           MemberKind
	Name           string
	Containing     string
	Access         Accessibility
	Type           string
	Annotations    []Annotation
	Decl           source.Span
	NameSpan       source.Span
	TypeSpan       source.Span
	HasAddAccessor bool
	IsAuto         bool
	IsStatic       bool
}

type MethodSpec struct {
	Name         string
	IsStatic     bool
	Declaring    string
	Decl         source.Span
	StaticInsert *source.Span
}

type SubscriptionSpec struct {
	Containing      string
	Member          string
	Target          TargetKind
	TargetText      string
	Handler         *MethodSpec
	HandlerSpan     source.Span
	HandlerNameSpan source.Span
	Qualified       bool
	Stmt            source.Span
}

// Skip records a node dropped because it lacked resolved type or location data.
type Skip struct {
	Node   string
	Reason string
}

// Graph is the immutable input of one analysis pass.
type Graph struct {
	Files         *source.FileSet
	Types         []*TypeNode
	Members       []*MemberNode
	Subscriptions []*SubscriptionSite
	Skipped       []Skip

	byID   map[string]*TypeNode
	byName map[QualifiedName]*TypeNode
}

// Type returns the node with the given id.
func (g *Graph) Type(id string) *TypeNode {
	return g.byID[id]
}

// Lookup returns the first type registered under q.
func (g *Graph) Lookup(q QualifiedName) *TypeNode {
	return g.byName[q]
}

// Declared returns the declared types in graph order.
func (g *Graph) Declared() []*TypeNode {
	out := make([]*TypeNode, 0, len(g.Types))
	for _, t := range g.Types {
		if t.Declared {
			out = append(out, t)
		}
	}
	return out
}

// Builder assembles a Graph, resolving string references and rejecting cycles.
type Builder struct {
	files   *source.FileSet
	types   []TypeSpec
	members []MemberSpec
	subs    []SubscriptionSpec
}

// NewBuilder creates a builder. When files is non-nil, member and subscription
// spans are validated against it.
func NewBuilder(files *source.FileSet) *Builder {
	return &Builder{files: files}
}

func (b *Builder) AddType(spec TypeSpec) *Builder {
	b.types = append(b.types, spec)
	return b
}

func (b *Builder) AddMember(spec MemberSpec) *Builder {
	b.members = append(b.members, spec)
	return b
}

func (b *Builder) AddSubscription(spec SubscriptionSpec) *Builder {
	b.subs = append(b.subs, spec)
	return b
}

// Build resolves references and computes interface closures.
// Members and subscriptions that cannot be resolved are skipped and listed in Graph.Skipped.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		Files:  b.files,
		Types:  make([]*TypeNode, 0, len(b.types)),
		byID:   make(map[string]*TypeNode, len(b.types)),
		byName: make(map[QualifiedName]*TypeNode, len(b.types)),
	}

	for i := range b.types {
		spec := &b.types[i]
		id := spec.ID
		if id == "" {
			id = spec.Name.String()
		}
		if _, dup := g.byID[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		t := &TypeNode{
			Index:       len(g.Types),
			ID:          id,
			Name:        spec.Name,
			Kind:        spec.Kind,
			IsValueType: spec.IsValueType || spec.Kind == KindStruct || spec.Kind == KindEnum,
			Declared:    spec.Declared,
			Annotations: spec.Annotations,
			Decl:        spec.Decl,
		}
		g.Types = append(g.Types, t)
		g.byID[id] = t
		if _, seen := g.byName[t.Name]; !seen {
			g.byName[t.Name] = t
		}
	}

	for i := range b.types {
		spec := &b.types[i]
		t := g.Types[i]
		var ok bool
		if spec.Base != "" {
			if t.Base, ok = g.byID[spec.Base]; !ok {
				g.skip(t.ID, "unknown base type "+spec.Base)
			}
		}
		t.Interfaces = g.resolveList(t.ID, spec.Interfaces)
		t.TypeArgs = g.resolveList(t.ID, spec.TypeArgs)
		if spec.Elem != "" {
			if t.Elem, ok = g.byID[spec.Elem]; !ok {
				g.skip(t.ID, "unknown element type "+spec.Elem)
			}
		}
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	g.computeInterfaces()

	for i := range b.members {
		g.addMember(&b.members[i])
	}
	for i := range b.subs {
		g.addSubscription(&b.subs[i])
	}
	return g, nil
}

func (g *Graph) skip(node, reason string) {
	g.Skipped = append(g.Skipped, Skip{Node: node, Reason: reason})
}

func (g *Graph) resolveList(owner string, ids []string) []*TypeNode {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*TypeNode, 0, len(ids))
	for _, id := range ids {
		t, ok := g.byID[id]
		if !ok {
			g.skip(owner, "unknown type "+id)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (g *Graph) validSpan(sp source.Span) bool {
	if g.Files == nil {
		return sp.End >= sp.Start
	}
	return g.Files.Valid(sp)
}

func (g *Graph) addMember(spec *MemberSpec) {
	name := spec.Containing + "." + spec.Name
	if spec.ID != "" {
		name = spec.ID
	}
	containing, ok := g.byID[spec.Containing]
	if !ok {
		g.skip(name, "unknown containing type")
		return
	}
	typ, ok := g.byID[spec.Type]
	if !ok {
		g.skip(name, "unresolved declared type")
		return
	}
	if !g.validSpan(spec.NameSpan) {
		g.skip(name, "missing name location")
		return
	}
	m := &MemberNode{
		ID:             name,
		Kind:           spec.Kind,
		Name:           spec.Name,
		Containing:     containing,
		Access:         spec.Access,
		Type:           typ,
		Annotations:    spec.Annotations,
		Decl:           spec.Decl,
		NameSpan:       spec.NameSpan,
		TypeSpan:       spec.TypeSpan,
		HasAddAccessor: spec.HasAddAccessor,
		IsAuto:         spec.IsAuto,
		IsStatic:       spec.IsStatic,
	}
	g.Members = append(g.Members, m)
	containing.Members = append(containing.Members, m)
}

func (g *Graph) addSubscription(spec *SubscriptionSpec) {
	name := spec.Containing + "." + spec.Member + ": " + spec.TargetText
	containing, ok := g.byID[spec.Containing]
	if !ok {
		g.skip(name, "unknown containing type")
		return
	}
	if !g.validSpan(spec.HandlerSpan) || (spec.Qualified && !g.validSpan(spec.HandlerNameSpan)) {
		g.skip(name, "missing handler location")
		return
	}
	s := &SubscriptionSite{
		Containing:      containing,
		Member:          spec.Member,
		Target:          spec.Target,
		TargetText:      spec.TargetText,
		HandlerSpan:     spec.HandlerSpan,
		HandlerNameSpan: spec.HandlerNameSpan,
		Qualified:       spec.Qualified,
		Stmt:            spec.Stmt,
	}
	if h := spec.Handler; h != nil {
		declaring, ok := g.byID[h.Declaring]
		if !ok {
			// unresolved handler type: keep the site, it can never report
			g.skip(name, "unknown handler declaring type "+h.Declaring)
		} else {
			s.Handler = &MethodRef{
				Name:      h.Name,
				IsStatic:  h.IsStatic,
				Declaring: declaring,
				Decl:      h.Decl,
			}
			if h.StaticInsert != nil {
				s.Handler.StaticInsert = *h.StaticInsert
				s.Handler.HasStaticInsert = true
			}
		}
	}
	g.Subscriptions = append(g.Subscriptions, s)
	containing.Subscriptions = append(containing.Subscriptions, s)
}

const (
	white = iota
	grey
	black
)

// checkCycles runs a DFS over base and interface edges.
func (g *Graph) checkCycles() error {
	color := make([]uint8, len(g.Types))
	var visit func(t *TypeNode) error
	visit = func(t *TypeNode) error {
		switch color[t.Index] {
		case grey:
			return fmt.Errorf("%w through %s", ErrCycle, t.Name)
		case black:
			return nil
		}
		color[t.Index] = grey
		if t.Base != nil {
			if err := visit(t.Base); err != nil {
				return err
			}
		}
		for _, iface := range t.Interfaces {
			if err := visit(iface); err != nil {
				return err
			}
		}
		color[t.Index] = black
		return nil
	}
	for _, t := range g.Types {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// computeInterfaces fills AllInterfaces: direct interfaces with their own
// closures first, then the base's closure, without duplicates.
func (g *Graph) computeInterfaces() {
	done := make([]bool, len(g.Types))
	var fill func(t *TypeNode)
	fill = func(t *TypeNode) {
		if done[t.Index] {
			return
		}
		done[t.Index] = true
		seen := make(map[*TypeNode]struct{})
		var all []*TypeNode
		add := func(n *TypeNode) {
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			all = append(all, n)
		}
		for _, iface := range t.Interfaces {
			fill(iface)
			add(iface)
			for _, inherited := range iface.AllInterfaces {
				add(inherited)
			}
		}
		if t.Base != nil {
			fill(t.Base)
			for _, inherited := range t.Base.AllInterfaces {
				add(inherited)
			}
		}
		t.AllInterfaces = all
	}
	for _, t := range g.Types {
		fill(t)
	}
}
