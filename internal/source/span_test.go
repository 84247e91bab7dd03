package source

import "testing"

func TestSpanCover(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want Span
	}{
		{"disjoint", Span{File: 1, Start: 10, End: 20}, Span{File: 1, Start: 30, End: 40}, Span{File: 1, Start: 10, End: 40}},
		{"nested", Span{File: 1, Start: 10, End: 40}, Span{File: 1, Start: 15, End: 20}, Span{File: 1, Start: 10, End: 40}},
		{"other file", Span{File: 1, Start: 10, End: 20}, Span{File: 2, Start: 0, End: 90}, Span{File: 1, Start: 10, End: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Cover(tt.b); got != tt.want {
				t.Errorf("Cover() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSpanPoints(t *testing.T) {
	s := Span{File: 3, Start: 5, End: 9}
	if p := s.StartPoint(); !p.Empty() || p.Start != 5 {
		t.Errorf("StartPoint = %+v", p)
	}
	if p := s.EndPoint(); !p.Empty() || p.Start != 9 {
		t.Errorf("EndPoint = %+v", p)
	}
	if !s.Contains(Span{File: 3, Start: 6, End: 9}) {
		t.Errorf("expected containment")
	}
	if s.Contains(Span{File: 4, Start: 6, End: 9}) {
		t.Errorf("spans from other files are never contained")
	}
	if (Span{Start: 9, End: 5}).Len() != 0 {
		t.Errorf("inverted span must have zero length")
	}
}
