package graph

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// QualifiedName is an exact (namespace, name) pair. Generic arity stays part of
// Name (WeakReference`1), so comparisons are plain equality.
type QualifiedName struct {
	Namespace string
	Name      string
}

// ParseQualifiedName splits "A.B.C" into namespace "A.B" and name "C".
// The input is NFC-normalized so that equal identifiers compare equal.
func ParseQualifiedName(s string) QualifiedName {
	s = norm.NFC.String(strings.TrimSpace(s))
	// generic arguments may contain dots: System.Action<System.Object>
	cut := len(s)
	if i := strings.IndexAny(s, "<["); i >= 0 {
		cut = i
	}
	i := strings.LastIndexByte(s[:cut], '.')
	if i < 0 {
		return QualifiedName{Name: s}
	}
	return QualifiedName{Namespace: s[:i], Name: s[i+1:]}
}

// NewQualifiedName builds a name from already split parts, NFC-normalizing both.
func NewQualifiedName(namespace, name string) QualifiedName {
	return QualifiedName{Namespace: norm.NFC.String(namespace), Name: norm.NFC.String(name)}
}

func (q QualifiedName) String() string {
	if q.Namespace == "" {
		return q.Name
	}
	return q.Namespace + "." + q.Name
}

func (q QualifiedName) IsZero() bool {
	return q.Namespace == "" && q.Name == ""
}

// BaseName strips generic arity or arguments: WeakReference`1 and WeakReference<T> become WeakReference.
func (q QualifiedName) BaseName() string {
	name := q.Name
	if i := strings.IndexAny(name, "`<"); i >= 0 {
		name = name[:i]
	}
	return name
}

var (
	ObjectName   = QualifiedName{Namespace: "System", Name: "Object"}
	DelegateName = QualifiedName{Namespace: "System", Name: "Delegate"}
)
