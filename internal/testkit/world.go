// Package testkit builds small program graphs over real source text for tests.
// Spans are located by searching the text, the way a front-end would report them.
package testkit

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"retaincheck/internal/graph"
	"retaincheck/internal/source"
)

// World is a graph under construction plus the single source file it points into.
// Standard library and UIKit types are pre-registered under short ids:
// object, string, int, Delegate, EventHandler, Action, NSObject, UIView,
// UIWindow, CALayer, UIColor, UIImage, UIApplicationDelegate,
// IUIApplicationDelegate, IUIWindowSceneDelegate, WeakReference.
type World struct {
	Files *source.FileSet
	File  source.FileID
	Text  string

	b    *graph.Builder
	errs []error
}

var (
	Register = graph.ParseQualifiedName("Foundation.RegisterAttribute")
	Suppress = graph.ParseQualifiedName("System.Diagnostics.CodeAnalysis.UnconditionalSuppressMessageAttribute")
)

// NewWorld registers text under path (relative paths stay relative to the
// FileSet base directory).
func NewWorld(path, text string) *World {
	fs := source.NewFileSet()
	return NewWorldIn(fs, path, text)
}

// NewWorldIn is NewWorld with a caller-supplied FileSet.
func NewWorldIn(fs *source.FileSet, path, text string) *World {
	w := &World{Files: fs, Text: text}
	w.File = fs.Add(path, []byte(text), 0)
	w.b = graph.NewBuilder(fs)
	w.stdlib()
	return w
}

func (w *World) ext(id, name, base string, mods ...func(*graph.TypeSpec)) {
	spec := graph.TypeSpec{ID: id, Name: graph.ParseQualifiedName(name), Base: base}
	for _, mod := range mods {
		mod(&spec)
	}
	w.b.AddType(spec)
}

func (w *World) stdlib() {
	w.ext("object", "System.Object", "")
	w.ext("string", "System.String", "object")
	w.ext("ValueType", "System.ValueType", "object")
	w.ext("int", "System.Int32", "ValueType", Kind(graph.KindStruct))
	w.ext("Delegate", "System.Delegate", "object")
	w.ext("MulticastDelegate", "System.MulticastDelegate", "Delegate")
	w.ext("EventHandler", "System.EventHandler", "MulticastDelegate", Kind(graph.KindDelegate))
	w.ext("Action", "System.Action", "MulticastDelegate", Kind(graph.KindDelegate))
	w.ext("WeakReference", "System.WeakReference`1", "object")
	w.ext("NSObject", "Foundation.NSObject", "object", Annotate(Marker("NSObject")))
	w.ext("UIResponder", "UIKit.UIResponder", "NSObject")
	w.ext("UIView", "UIKit.UIView", "UIResponder")
	w.ext("UIWindow", "UIKit.UIWindow", "UIView")
	w.ext("CALayer", "CoreAnimation.CALayer", "NSObject")
	w.ext("UIColor", "UIKit.UIColor", "NSObject")
	w.ext("UIImage", "UIKit.UIImage", "NSObject")
	w.ext("UIApplicationDelegate", "UIKit.UIApplicationDelegate", "UIResponder")
	w.ext("IUIApplicationDelegate", "UIKit.IUIApplicationDelegate", "", Kind(graph.KindInterface))
	w.ext("IUIWindowSceneDelegate", "UIKit.IUIWindowSceneDelegate", "", Kind(graph.KindInterface))
}

// Kind sets the type kind.
func Kind(k graph.TypeKind) func(*graph.TypeSpec) {
	return func(s *graph.TypeSpec) { s.Kind = k }
}

// Annotate adds annotations to a type.
func Annotate(anns ...graph.Annotation) func(*graph.TypeSpec) {
	return func(s *graph.TypeSpec) { s.Annotations = append(s.Annotations, anns...) }
}

// Implements adds interfaces to a type.
func Implements(ids ...string) func(*graph.TypeSpec) {
	return func(s *graph.TypeSpec) { s.Interfaces = append(s.Interfaces, ids...) }
}

// Marker is a bridge marker in its positional form: [Register(name, true)].
func Marker(name string) graph.Annotation {
	return graph.NewAnnotation(Register, []graph.Arg{{Value: graph.String(name)}, {Value: graph.Bool(true)}})
}

// Suppression is a suppression annotation in its positional form.
func Suppression(checkID string) graph.Annotation {
	return graph.NewAnnotation(Suppress, []graph.Arg{{Value: graph.String("Memory")}, {Value: graph.String(checkID)}})
}

// External registers a referenced type without a declaration.
func (w *World) External(id, name, base string, mods ...func(*graph.TypeSpec)) {
	w.ext(id, name, base, mods...)
}

// Class declares a type whose declaration is the first occurrence of decl.
func (w *World) Class(id, name, base, decl string, mods ...func(*graph.TypeSpec)) {
	spec := graph.TypeSpec{
		ID:       id,
		Name:     graph.ParseQualifiedName(name),
		Base:     base,
		Declared: true,
		Decl:     w.Span(decl),
	}
	for _, mod := range mods {
		mod(&spec)
	}
	w.b.AddType(spec)
}

// Array registers T[] for the element type id.
func (w *World) Array(id, elem string) {
	w.b.AddType(graph.TypeSpec{ID: id, Name: graph.QualifiedName{Name: id}, Kind: graph.KindArray, Base: "object", Elem: elem})
}

// Member declares an event, field or property. decl is the whole declaration
// text, name and typ are located inside it.
func (w *World) Member(kind graph.MemberKind, containing, decl, name, typ, typeID string, mods ...func(*graph.MemberSpec)) {
	declSpan := w.Span(decl)
	spec := graph.MemberSpec{
		Kind:       kind,
		Name:       name,
		Containing: containing,
		Type:       typeID,
		Access:     accessOf(decl),
		Decl:       declSpan,
		TypeSpan:   w.within(declSpan, decl, typ, 0),
		NameSpan:   w.within(declSpan, decl, name, strings.Index(decl, typ)+len(typ)),
		IsStatic:   hasWord(decl, "static"),
	}
	if kind == graph.MemberProperty {
		spec.IsAuto = strings.Contains(decl, "get;")
	}
	for _, mod := range mods {
		mod(&spec)
	}
	w.b.AddMember(spec)
}

// WithAnnotations attaches annotations to a member.
func WithAnnotations(anns ...graph.Annotation) func(*graph.MemberSpec) {
	return func(s *graph.MemberSpec) { s.Annotations = append(s.Annotations, anns...) }
}

// WithAddAccessor marks an event as having an explicit add body.
func WithAddAccessor() func(*graph.MemberSpec) {
	return func(s *graph.MemberSpec) { s.HasAddAccessor = true }
}

// Method describes a resolved handler declared by decl.
func (w *World) Method(declaring, decl, name string) *graph.MethodSpec {
	sp := w.Span(decl)
	insert := sp.Start + uint32(modifierPrefix(decl))
	at := source.Span{File: sp.File, Start: insert, End: insert}
	return &graph.MethodSpec{
		Name:         name,
		IsStatic:     hasWord(decl, "static"),
		Declaring:    declaring,
		Decl:         sp,
		StaticInsert: &at,
	}
}

// Subscribe records "target += handler;" found as stmt inside member of containing.
func (w *World) Subscribe(containing, member, stmt string, handler *graph.MethodSpec) {
	sp := w.Span(stmt)
	lhs, rhs, ok := strings.Cut(stmt, "+=")
	if !ok {
		w.errs = append(w.errs, fmt.Errorf("subscription %q has no +=", stmt))
		return
	}
	target := strings.TrimSpace(lhs)
	expr := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rhs), ";"))
	exprOff := strings.Index(stmt, expr)
	exprSpan := w.sub(sp, exprOff, exprOff+len(expr))

	spec := graph.SubscriptionSpec{
		Containing:  containing,
		Member:      member,
		Target:      targetKind(target),
		TargetText:  target,
		Handler:     handler,
		HandlerSpan: exprSpan,
		Stmt:        sp,
	}
	if dot := strings.LastIndexByte(expr, '.'); dot >= 0 {
		spec.Qualified = true
		spec.HandlerNameSpan = w.sub(sp, exprOff+dot+1, exprOff+len(expr))
	}
	w.b.AddSubscription(spec)
}

// Build returns the graph or the first setup error.
func (w *World) Build() (*graph.Graph, error) {
	if len(w.errs) > 0 {
		return nil, w.errs[0]
	}
	return w.b.Build()
}

// Span returns the span of the first occurrence of needle.
func (w *World) Span(needle string) source.Span {
	return w.SpanN(needle, 0)
}

// SpanN returns the span of the n-th (0-based) occurrence of needle.
func (w *World) SpanN(needle string, n int) source.Span {
	off := 0
	for i := 0; ; i++ {
		idx := strings.Index(w.Text[off:], needle)
		if idx < 0 {
			w.errs = append(w.errs, fmt.Errorf("%q (occurrence %d) not found", needle, n))
			return source.Span{File: w.File}
		}
		if i == n {
			return w.sub(source.Span{File: w.File}, off+idx, off+idx+len(needle))
		}
		off += idx + len(needle)
	}
}

func (w *World) within(outer source.Span, text, needle string, from int) source.Span {
	idx := strings.Index(text[from:], needle)
	if idx < 0 {
		w.errs = append(w.errs, fmt.Errorf("%q not found in %q", needle, text))
		return outer
	}
	return w.sub(outer, from+idx, from+idx+len(needle))
}

func (w *World) sub(outer source.Span, start, end int) source.Span {
	s, err1 := safecast.Conv[uint32](start)
	e, err2 := safecast.Conv[uint32](end)
	if err1 != nil || err2 != nil {
		w.errs = append(w.errs, fmt.Errorf("offset overflow"))
		return outer
	}
	return source.Span{File: outer.File, Start: outer.Start + s, End: outer.Start + e}
}

var accessWords = []string{"public", "private", "protected", "internal"}

func accessOf(decl string) graph.Accessibility {
	var words []string
	for _, f := range strings.Fields(decl) {
		for _, a := range accessWords {
			if f == a {
				words = append(words, f)
			}
		}
	}
	a, err := graph.ParseAccessibility(strings.Join(words, " "))
	if err != nil {
		return graph.AccessPrivate
	}
	return a
}

func modifierPrefix(decl string) int {
	off := 0
	rest := decl
	for {
		trimmed := strings.TrimLeft(rest, " \t")
		off += len(rest) - len(trimmed)
		word, _, _ := strings.Cut(trimmed, " ")
		isAccess := false
		for _, a := range accessWords {
			if word == a {
				isAccess = true
			}
		}
		if !isAccess {
			return off
		}
		off += len(word)
		rest = trimmed[len(word):]
	}
}

func hasWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}

func targetKind(target string) graph.TargetKind {
	switch {
	case strings.HasPrefix(target, "this."):
		return graph.TargetThis
	case !strings.ContainsAny(target, ".[("):
		return graph.TargetIdentifier
	}
	return graph.TargetOther
}
