// Package graphio reads program graph documents produced by a front-end.
//
// A document lists the analyzed source files and the types, members and
// subscription statements found in them. Types are referenced by string id;
// spans point into the listed files by index. The same document shape is
// accepted as JSON, YAML or msgpack.
package graphio

// Document is the wire form of a program graph.
type Document struct {
	Schema        string            `json:"schema" yaml:"schema" msgpack:"schema"`
	Files         []string          `json:"files" yaml:"files" msgpack:"files"`
	Types         []TypeDoc         `json:"types" yaml:"types" msgpack:"types"`
	Members       []MemberDoc       `json:"members,omitempty" yaml:"members,omitempty" msgpack:"members,omitempty"`
	Subscriptions []SubscriptionDoc `json:"subscriptions,omitempty" yaml:"subscriptions,omitempty" msgpack:"subscriptions,omitempty"`
}

// SpanDoc is a byte range in Files[File].
type SpanDoc struct {
	File  int    `json:"file" yaml:"file" msgpack:"file"`
	Start uint32 `json:"start" yaml:"start" msgpack:"start"`
	End   uint32 `json:"end" yaml:"end" msgpack:"end"`
}

// ArgDoc is one annotation argument; positional arguments have no name.
type ArgDoc struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Value any    `json:"value" yaml:"value" msgpack:"value"`
}

type AnnotationDoc struct {
	Name string   `json:"name" yaml:"name" msgpack:"name"`
	Args []ArgDoc `json:"args,omitempty" yaml:"args,omitempty" msgpack:"args,omitempty"`
}

type TypeDoc struct {
	ID          string          `json:"id" yaml:"id" msgpack:"id"`
	Namespace   string          `json:"namespace,omitempty" yaml:"namespace,omitempty" msgpack:"namespace,omitempty"`
	Name        string          `json:"name" yaml:"name" msgpack:"name"`
	Kind        string          `json:"kind,omitempty" yaml:"kind,omitempty" msgpack:"kind,omitempty"`
	ValueType   bool            `json:"value_type,omitempty" yaml:"value_type,omitempty" msgpack:"value_type,omitempty"`
	Declared    bool            `json:"declared,omitempty" yaml:"declared,omitempty" msgpack:"declared,omitempty"`
	Annotations []AnnotationDoc `json:"annotations,omitempty" yaml:"annotations,omitempty" msgpack:"annotations,omitempty"`
	Base        string          `json:"base,omitempty" yaml:"base,omitempty" msgpack:"base,omitempty"`
	Interfaces  []string        `json:"interfaces,omitempty" yaml:"interfaces,omitempty" msgpack:"interfaces,omitempty"`
	Elem        string          `json:"elem,omitempty" yaml:"elem,omitempty" msgpack:"elem,omitempty"`
	TypeArgs    []string        `json:"type_args,omitempty" yaml:"type_args,omitempty" msgpack:"type_args,omitempty"`
	Decl        *SpanDoc        `json:"decl,omitempty" yaml:"decl,omitempty" msgpack:"decl,omitempty"`
}

type MemberDoc struct {
	ID             string          `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id,omitempty"`
	Kind           string          `json:"kind" yaml:"kind" msgpack:"kind"`
	Name           string          `json:"name" yaml:"name" msgpack:"name"`
	Containing     string          `json:"containing" yaml:"containing" msgpack:"containing"`
	Access         string          `json:"access,omitempty" yaml:"access,omitempty" msgpack:"access,omitempty"`
	Type           string          `json:"type" yaml:"type" msgpack:"type"`
	Annotations    []AnnotationDoc `json:"annotations,omitempty" yaml:"annotations,omitempty" msgpack:"annotations,omitempty"`
	Decl           *SpanDoc        `json:"decl,omitempty" yaml:"decl,omitempty" msgpack:"decl,omitempty"`
	NameSpan       *SpanDoc        `json:"name_span,omitempty" yaml:"name_span,omitempty" msgpack:"name_span,omitempty"`
	TypeSpan       *SpanDoc        `json:"type_span,omitempty" yaml:"type_span,omitempty" msgpack:"type_span,omitempty"`
	HasAddAccessor bool            `json:"has_add_accessor,omitempty" yaml:"has_add_accessor,omitempty" msgpack:"has_add_accessor,omitempty"`
	IsAuto         bool            `json:"is_auto,omitempty" yaml:"is_auto,omitempty" msgpack:"is_auto,omitempty"`
	IsStatic       bool            `json:"is_static,omitempty" yaml:"is_static,omitempty" msgpack:"is_static,omitempty"`
}

type MethodDoc struct {
	Name         string   `json:"name" yaml:"name" msgpack:"name"`
	IsStatic     bool     `json:"is_static,omitempty" yaml:"is_static,omitempty" msgpack:"is_static,omitempty"`
	Declaring    string   `json:"declaring" yaml:"declaring" msgpack:"declaring"`
	Decl         *SpanDoc `json:"decl,omitempty" yaml:"decl,omitempty" msgpack:"decl,omitempty"`
	StaticInsert *SpanDoc `json:"static_insert,omitempty" yaml:"static_insert,omitempty" msgpack:"static_insert,omitempty"`
}

type SubscriptionDoc struct {
	Containing      string     `json:"containing" yaml:"containing" msgpack:"containing"`
	Member          string     `json:"member,omitempty" yaml:"member,omitempty" msgpack:"member,omitempty"`
	Target          string     `json:"target" yaml:"target" msgpack:"target"`
	TargetText      string     `json:"target_text,omitempty" yaml:"target_text,omitempty" msgpack:"target_text,omitempty"`
	Handler         *MethodDoc `json:"handler,omitempty" yaml:"handler,omitempty" msgpack:"handler,omitempty"`
	HandlerSpan     *SpanDoc   `json:"handler_span,omitempty" yaml:"handler_span,omitempty" msgpack:"handler_span,omitempty"`
	HandlerNameSpan *SpanDoc   `json:"handler_name_span,omitempty" yaml:"handler_name_span,omitempty" msgpack:"handler_name_span,omitempty"`
	Qualified       bool       `json:"qualified,omitempty" yaml:"qualified,omitempty" msgpack:"qualified,omitempty"`
	Stmt            *SpanDoc   `json:"stmt,omitempty" yaml:"stmt,omitempty" msgpack:"stmt,omitempty"`
}
