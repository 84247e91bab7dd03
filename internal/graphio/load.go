package graphio

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"retaincheck/internal/graph"
	"retaincheck/internal/project"
	"retaincheck/internal/source"
)

// ErrUnsupportedSchema is returned when a document's schema version is outside SupportedSchema.
var ErrUnsupportedSchema = errors.New("unsupported graph schema")

// SupportedSchema is the accepted range of document schema versions.
const SupportedSchema = ">=1.0.0, <2.0.0"

// CurrentSchema is written by Encode callers that build documents.
const CurrentSchema = "1.0.0"

var schemaConstraint = mustConstraint(SupportedSchema)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Loaded is a decoded, built graph together with where it came from.
type Loaded struct {
	Graph  *graph.Graph
	Path   string
	Format Format
	Schema *semver.Version
	// Digest covers the document bytes and the content of every listed file.
	Digest project.Digest
}

// Load reads, decodes and builds the document at path. Source files are
// resolved relative to the document's directory; unreadable ones are kept as
// missing so their spans still resolve to a path.
func Load(path string) (*Loaded, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is the document the user asked to check
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph document: %w", err)
	}
	l, err := Decode(data, format, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Path = path
	return l, nil
}

// Decode builds a graph from document bytes. baseDir anchors relative file paths.
func Decode(data []byte, format Format, baseDir string) (*Loaded, error) {
	doc, err := Unmarshal(data, format)
	if err != nil {
		return nil, err
	}
	version, err := CheckSchema(doc.Schema)
	if err != nil {
		return nil, err
	}

	files := source.NewFileSetWithBase(baseDir)
	ids := make([]source.FileID, 0, len(doc.Files))
	digests := []project.Digest{project.Sum(data)}
	for _, p := range doc.Files {
		id, loadErr := files.Load(p)
		if loadErr != nil {
			id = files.AddMissing(p)
		}
		f := files.Get(id)
		ids = append(ids, id)
		digests = append(digests, project.Sum([]byte(f.Path)), f.Hash)
	}

	g, err := Build(doc, files, ids)
	if err != nil {
		return nil, err
	}
	return &Loaded{
		Graph:  g,
		Format: format,
		Schema: version,
		Digest: project.Combine(digests[0], digests[1:]...),
	}, nil
}

// CheckSchema parses s and checks it against SupportedSchema.
func CheckSchema(s string) (*semver.Version, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing schema version", ErrUnsupportedSchema)
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedSchema, s, err)
	}
	if !schemaConstraint.Check(v) {
		return nil, fmt.Errorf("%w: %s (want %s)", ErrUnsupportedSchema, v, SupportedSchema)
	}
	return v, nil
}

// Build converts doc into a graph over files; ids[i] is the FileID of
// doc.Files[i]. Nodes with unknown kinds or dangling spans are skipped and
// listed in Graph.Skipped ahead of what the builder itself drops.
func Build(doc *Document, files *source.FileSet, ids []source.FileID) (*graph.Graph, error) {
	if len(ids) != len(doc.Files) {
		return nil, fmt.Errorf("graph document lists %d files, got %d ids", len(doc.Files), len(ids))
	}
	c := converter{ids: ids}

	b := graph.NewBuilder(files)
	for i := range doc.Types {
		if spec, ok := c.typeSpec(&doc.Types[i]); ok {
			b.AddType(spec)
		}
	}
	for i := range doc.Members {
		if spec, ok := c.memberSpec(&doc.Members[i]); ok {
			b.AddMember(spec)
		}
	}
	for i := range doc.Subscriptions {
		if spec, ok := c.subscriptionSpec(&doc.Subscriptions[i]); ok {
			b.AddSubscription(spec)
		}
	}
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	g.Skipped = append(c.skipped, g.Skipped...)
	return g, nil
}

type converter struct {
	ids     []source.FileID
	skipped []graph.Skip
}

func (c *converter) skip(node, reason string) {
	c.skipped = append(c.skipped, graph.Skip{Node: node, Reason: reason})
}

// span converts an optional span; ok is false for dangling file indexes.
func (c *converter) span(s *SpanDoc) (source.Span, bool) {
	if s == nil {
		return source.Span{}, true
	}
	if s.File < 0 || s.File >= len(c.ids) || s.End < s.Start {
		return source.Span{}, false
	}
	return source.Span{File: c.ids[s.File], Start: s.Start, End: s.End}, true
}

func (c *converter) spans(node string, docs []*SpanDoc, out []*source.Span) bool {
	for i, d := range docs {
		sp, ok := c.span(d)
		if !ok {
			c.skip(node, "invalid span")
			return false
		}
		*out[i] = sp
	}
	return true
}

func (c *converter) typeSpec(d *TypeDoc) (graph.TypeSpec, bool) {
	node := d.ID
	if node == "" {
		node = d.Name
	}
	if d.Name == "" {
		c.skip(node, "missing type name")
		return graph.TypeSpec{}, false
	}
	kind, err := graph.ParseTypeKind(d.Kind)
	if err != nil {
		c.skip(node, err.Error())
		return graph.TypeSpec{}, false
	}
	name := graph.NewQualifiedName(d.Namespace, d.Name)
	if d.Namespace == "" {
		name = graph.ParseQualifiedName(d.Name)
	}
	spec := graph.TypeSpec{
		ID:          d.ID,
		Name:        name,
		Kind:        kind,
		IsValueType: d.ValueType,
		Declared:    d.Declared,
		Annotations: c.annotations(d.Annotations),
		Base:        d.Base,
		Interfaces:  d.Interfaces,
		Elem:        d.Elem,
		TypeArgs:    d.TypeArgs,
	}
	if !c.spans(node, []*SpanDoc{d.Decl}, []*source.Span{&spec.Decl}) {
		return graph.TypeSpec{}, false
	}
	return spec, true
}

func (c *converter) memberSpec(d *MemberDoc) (graph.MemberSpec, bool) {
	node := d.Containing + "." + d.Name
	kind, err := graph.ParseMemberKind(d.Kind)
	if err != nil {
		c.skip(node, err.Error())
		return graph.MemberSpec{}, false
	}
	access, err := graph.ParseAccessibility(d.Access)
	if err != nil {
		c.skip(node, err.Error())
		return graph.MemberSpec{}, false
	}
	spec := graph.MemberSpec{
		ID:             d.ID,
		Kind:           kind,
		Name:           d.Name,
		Containing:     d.Containing,
		Access:         access,
		Type:           d.Type,
		Annotations:    c.annotations(d.Annotations),
		HasAddAccessor: d.HasAddAccessor,
		IsAuto:         d.IsAuto,
		IsStatic:       d.IsStatic,
	}
	ok := c.spans(node,
		[]*SpanDoc{d.Decl, d.NameSpan, d.TypeSpan},
		[]*source.Span{&spec.Decl, &spec.NameSpan, &spec.TypeSpan})
	return spec, ok
}

func (c *converter) subscriptionSpec(d *SubscriptionDoc) (graph.SubscriptionSpec, bool) {
	node := d.Containing + "." + d.Member
	target, err := graph.ParseTargetKind(d.Target)
	if err != nil {
		c.skip(node, err.Error())
		return graph.SubscriptionSpec{}, false
	}
	spec := graph.SubscriptionSpec{
		Containing: d.Containing,
		Member:     d.Member,
		Target:     target,
		TargetText: d.TargetText,
		Qualified:  d.Qualified,
	}
	if !c.spans(node,
		[]*SpanDoc{d.HandlerSpan, d.HandlerNameSpan, d.Stmt},
		[]*source.Span{&spec.HandlerSpan, &spec.HandlerNameSpan, &spec.Stmt}) {
		return graph.SubscriptionSpec{}, false
	}
	if h := d.Handler; h != nil {
		m := &graph.MethodSpec{Name: h.Name, IsStatic: h.IsStatic, Declaring: h.Declaring}
		if !c.spans(node, []*SpanDoc{h.Decl}, []*source.Span{&m.Decl}) {
			return graph.SubscriptionSpec{}, false
		}
		if h.StaticInsert != nil {
			var at source.Span
			if !c.spans(node, []*SpanDoc{h.StaticInsert}, []*source.Span{&at}) {
				return graph.SubscriptionSpec{}, false
			}
			m.StaticInsert = &at
		}
		spec.Handler = m
	}
	return spec, true
}

func (c *converter) annotations(docs []AnnotationDoc) []graph.Annotation {
	if len(docs) == 0 {
		return nil
	}
	out := make([]graph.Annotation, 0, len(docs))
	for _, d := range docs {
		args := make([]graph.Arg, 0, len(d.Args))
		for _, a := range d.Args {
			args = append(args, graph.Arg{Name: a.Name, Value: valueOf(a.Value)})
		}
		out = append(out, graph.NewAnnotation(graph.ParseQualifiedName(d.Name), args))
	}
	return out
}

// valueOf maps a decoded scalar onto the annotation value union. JSON numbers
// arrive as json.Number, YAML as int or float64, msgpack as any sized integer.
func valueOf(v any) graph.Value {
	switch x := v.(type) {
	case nil:
		return graph.Null()
	case string:
		return graph.String(x)
	case bool:
		return graph.Bool(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return graph.Int(i)
		}
		return graph.Other(x.String())
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= math.MaxInt64 {
			return graph.Int(int64(x))
		}
		return graph.Other(strconv.FormatFloat(x, 'g', -1, 64))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return graph.Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return graph.Int(int64(u))
		}
	}
	return graph.Other(fmt.Sprint(v))
}
