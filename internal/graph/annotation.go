package graph

import (
	"strconv"
	"strings"
)

type ValueKind uint8

const (
	ValueOther ValueKind = iota
	ValueString
	ValueBool
	ValueInt
	ValueNull
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueNull:
		return "null"
	}
	return "other"
}

// Value is one annotation argument. Only the field matching Kind is meaningful;
// Raw keeps the front-end's text for ValueOther.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	Int  int64
	Raw  string
}

func String(s string) Value { return Value{Kind: ValueString, Str: s} }
func Bool(b bool) Value     { return Value{Kind: ValueBool, Bool: b} }
func Int(i int64) Value     { return Value{Kind: ValueInt, Int: i} }
func Null() Value           { return Value{Kind: ValueNull} }
func Other(raw string) Value {
	return Value{Kind: ValueOther, Raw: raw}
}

// IsTrue reports whether the value is the boolean true.
func (v Value) IsTrue() bool {
	return v.Kind == ValueBool && v.Bool
}

func (v Value) AsString() (string, bool) {
	if v.Kind != ValueString {
		return "", false
	}
	return v.Str, true
}

func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueNull:
		return "null"
	}
	return v.Raw
}

// Shape describes which argument forms an annotation uses.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapePositional
	ShapeNamed
	ShapeMixed
)

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapePositional:
		return "positional"
	case ShapeNamed:
		return "named"
	case ShapeMixed:
		return "mixed"
	}
	return "unknown"
}

type NamedValue struct {
	Name  string
	Value Value
}

// Annotation is a declared attribute with its arguments already split into
// positional and named parts.
type Annotation struct {
	Name       QualifiedName
	Shape      Shape
	Positional []Value
	Named      []NamedValue
}

// Arg is an annotation argument as written by the front-end: Name is empty
// for positional arguments.
type Arg struct {
	Name  string
	Value Value
}

// NewAnnotation normalizes raw arguments into an Annotation.
func NewAnnotation(name QualifiedName, args []Arg) Annotation {
	a := Annotation{Name: name}
	for _, arg := range args {
		if arg.Name == "" {
			a.Positional = append(a.Positional, arg.Value)
			continue
		}
		a.Named = append(a.Named, NamedValue{Name: arg.Name, Value: arg.Value})
	}
	switch {
	case len(a.Positional) > 0 && len(a.Named) > 0:
		a.Shape = ShapeMixed
	case len(a.Positional) > 0:
		a.Shape = ShapePositional
	case len(a.Named) > 0:
		a.Shape = ShapeNamed
	}
	return a
}

// NamedArg returns the last value bound to name.
func (a *Annotation) NamedArg(name string) (Value, bool) {
	for i := len(a.Named) - 1; i >= 0; i-- {
		if a.Named[i].Name == name {
			return a.Named[i].Value, true
		}
	}
	return Value{}, false
}

// MatchArg applies the two accepted argument forms: with exactly two
// positional arguments the one at pos is tested, and independently the
// named argument name is tested. Any other shape never matches.
func (a *Annotation) MatchArg(pos int, name string, pred func(Value) bool) bool {
	if len(a.Positional) == 2 && pos >= 0 && pos < 2 && pred(a.Positional[pos]) {
		return true
	}
	if v, ok := a.NamedArg(name); ok && pred(v) {
		return true
	}
	return false
}

// Is reports whether the annotation type is exactly q. A trailing "Attribute"
// suffix is not implied.
func (a *Annotation) Is(q QualifiedName) bool {
	return a.Name == q
}

func (a *Annotation) String() string {
	var b strings.Builder
	b.WriteString(a.Name.String())
	b.WriteByte('(')
	n := 0
	for _, v := range a.Positional {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
		n++
	}
	for _, nv := range a.Named {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(nv.Name)
		b.WriteString(" = ")
		b.WriteString(nv.Value.String())
		n++
	}
	b.WriteByte(')')
	return b.String()
}
