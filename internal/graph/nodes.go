package graph

import (
	"fmt"
	"strings"

	"retaincheck/internal/source"
)

type TypeKind uint8

const (
	KindClass TypeKind = iota
	KindInterface
	KindStruct
	KindEnum
	KindDelegate
	KindArray
	KindTypeParam
)

var typeKindNames = [...]string{
	KindClass:     "class",
	KindInterface: "interface",
	KindStruct:    "struct",
	KindEnum:      "enum",
	KindDelegate:  "delegate",
	KindArray:     "array",
	KindTypeParam: "type-param",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", k)
}

func ParseTypeKind(s string) (TypeKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindClass, nil
	}
	for k, name := range typeKindNames {
		if name == s {
			return TypeKind(k), nil
		}
	}
	return KindClass, fmt.Errorf("unknown type kind %q", s)
}

// TypeNode is a named type of the analyzed program or one it references.
// Nodes are immutable once the Builder returns the graph.
type TypeNode struct {
	Index       int // position in Graph.Types
	ID          string
	Name        QualifiedName
	Kind        TypeKind
	IsValueType bool
	// Declared marks types whose declaration is part of the analyzed sources.
	Declared    bool
	Annotations []Annotation
	Base        *TypeNode
	Interfaces  []*TypeNode
	// AllInterfaces is the transitive closure over bases and interface inheritance.
	AllInterfaces []*TypeNode
	Elem          *TypeNode
	TypeArgs      []*TypeNode
	Decl          source.Span

	Members       []*MemberNode
	Subscriptions []*SubscriptionSite
}

func (t *TypeNode) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name.String()
}

// Is reports whether t is exactly the type named q.
func (t *TypeNode) Is(q QualifiedName) bool {
	return t != nil && t.Name == q
}

type MemberKind uint8

const (
	MemberEvent MemberKind = iota
	MemberField
	MemberProperty
)

func (k MemberKind) String() string {
	switch k {
	case MemberEvent:
		return "event"
	case MemberField:
		return "field"
	case MemberProperty:
		return "property"
	}
	return fmt.Sprintf("MemberKind(%d)", k)
}

func ParseMemberKind(s string) (MemberKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "event":
		return MemberEvent, nil
	case "field":
		return MemberField, nil
	case "property":
		return MemberProperty, nil
	}
	return MemberField, fmt.Errorf("unknown member kind %q", s)
}

type Accessibility uint8

const (
	AccessPrivate Accessibility = iota
	AccessPrivateProtected
	AccessProtected
	AccessInternal
	AccessProtectedInternal
	AccessPublic
)

var accessNames = [...]string{
	AccessPrivate:           "private",
	AccessPrivateProtected:  "private protected",
	AccessProtected:         "protected",
	AccessInternal:          "internal",
	AccessProtectedInternal: "protected internal",
	AccessPublic:            "public",
}

func (a Accessibility) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return fmt.Sprintf("Accessibility(%d)", a)
}

// ParseAccessibility accepts the spellings used by front-ends ("protected-internal" too).
func ParseAccessibility(s string) (Accessibility, error) {
	norm := strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), " ")
	if norm == "" {
		return AccessPrivate, nil
	}
	for a, name := range accessNames {
		if name == norm {
			return Accessibility(a), nil
		}
	}
	return AccessPrivate, fmt.Errorf("unknown accessibility %q", s)
}

// MemberNode is an event, field or property declaration.
type MemberNode struct {
	ID          string
	Kind        MemberKind
	Name        string
	Containing  *TypeNode
	Access      Accessibility
	Type        *TypeNode
	Annotations []Annotation
	Decl        source.Span
	NameSpan    source.Span
	TypeSpan    source.Span
	// HasAddAccessor is set for events with an explicit add body.
	HasAddAccessor bool
	// IsAuto is set for properties backed by a compiler-synthesized field.
	IsAuto   bool
	IsStatic bool
}

func (m *MemberNode) String() string {
	return m.Containing.String() + "." + m.Name
}

type TargetKind uint8

const (
	// TargetIdentifier is a bare identifier: Clicked += ...
	TargetIdentifier TargetKind = iota
	// TargetThis is this-qualified: this.Clicked += ...
	TargetThis
	// TargetOther is any other receiver: button.Clicked += ...
	TargetOther
)

func (k TargetKind) String() string {
	switch k {
	case TargetIdentifier:
		return "identifier"
	case TargetThis:
		return "this"
	case TargetOther:
		return "other"
	}
	return fmt.Sprintf("TargetKind(%d)", k)
}

func ParseTargetKind(s string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identifier", "ident":
		return TargetIdentifier, nil
	case "this":
		return TargetThis, nil
	case "other":
		return TargetOther, nil
	}
	return TargetOther, fmt.Errorf("unknown subscription target %q", s)
}

// MethodRef is a resolved handler method.
type MethodRef struct {
	Name      string
	IsStatic  bool
	Declaring *TypeNode
	Decl      source.Span
	// StaticInsert is the zero-length position where "static " can be inserted.
	StaticInsert    source.Span
	HasStaticInsert bool
}

// SubscriptionSite is a "target += handler" statement.
type SubscriptionSite struct {
	Containing *TypeNode
	// Member is the name of the containing member (method, constructor) the statement is in.
	Member     string
	Target     TargetKind
	TargetText string
	// Handler is nil when the front-end could not resolve the handler.
	Handler *MethodRef
	// HandlerSpan covers the whole handler expression; HandlerNameSpan only the
	// name when the expression is qualified (obj.OnTap).
	HandlerSpan     source.Span
	HandlerNameSpan source.Span
	Qualified       bool
	Stmt            source.Span
}

// ReportSpan is where a subscription finding is located.
func (s *SubscriptionSite) ReportSpan() source.Span {
	if s.Qualified {
		return s.HandlerNameSpan
	}
	return s.HandlerSpan
}
