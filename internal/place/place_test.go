package place

import (
	"testing"

	"borrowck/internal/source"
)

func newTestTable() (*Table, *source.Interner) {
	return NewTable(), source.NewInterner()
}

func TestResolveCanonicalizes(t *testing.T) {
	tbl, strs := newTestTable()
	scope := tbl.NewScope(NoScopeID)
	p := tbl.NewBinding(strs.Intern("p"), true, true, scope, source.Span{})

	field := Projection{Kind: ProjectionField, Field: strs.Intern("a")}
	first := tbl.Resolve(p, []Projection{field})
	second := tbl.Resolve(p, []Projection{field})
	if first != second {
		t.Fatalf("same path resolved to different places: %d vs %d", first, second)
	}
	if tbl.Base(first) != p {
		t.Fatalf("base mismatch: %d", tbl.Base(first))
	}
}

func TestPrefixAndOverlap(t *testing.T) {
	tbl, strs := newTestTable()
	scope := tbl.NewScope(NoScopeID)
	p := tbl.NewBinding(strs.Intern("p"), true, true, scope, source.Span{})

	whole := tbl.Root(p)
	fieldA := tbl.Project(whole, Projection{Kind: ProjectionField, Field: strs.Intern("a")})
	fieldB := tbl.Project(whole, Projection{Kind: ProjectionField, Field: strs.Intern("b")})
	nested := tbl.Project(fieldA, Projection{Kind: ProjectionField, Field: strs.Intern("x")})

	if !tbl.IsPrefixOf(whole, fieldA) {
		t.Fatal("whole must be a prefix of p.a")
	}
	if tbl.IsPrefixOf(fieldA, whole) {
		t.Fatal("p.a must not be a prefix of whole")
	}
	if !tbl.Overlaps(whole, fieldB) {
		t.Fatal("whole-struct borrow conflicts with any field")
	}
	if tbl.Overlaps(fieldA, fieldB) {
		t.Fatal("disjoint sibling fields must not overlap")
	}
	if !tbl.Overlaps(fieldA, nested) {
		t.Fatal("p.a overlaps p.a.x")
	}
}

func TestIndexProjectionsAlias(t *testing.T) {
	tbl, strs := newTestTable()
	scope := tbl.NewScope(NoScopeID)
	v := tbl.NewBinding(strs.Intern("v"), true, true, scope, source.Span{})

	root := tbl.Root(v)
	first := tbl.Project(root, Projection{Kind: ProjectionIndex})
	second := tbl.Project(root, Projection{Kind: ProjectionIndex})
	if first != second {
		t.Fatalf("index projections must canonicalize together: %d vs %d", first, second)
	}
	if !tbl.Overlaps(root, first) {
		t.Fatal("v overlaps v[_]")
	}
}

func TestLabel(t *testing.T) {
	tbl, strs := newTestTable()
	scope := tbl.NewScope(NoScopeID)
	p := tbl.NewBinding(strs.Intern("p"), true, true, scope, source.Span{})

	fieldA := tbl.Resolve(p, []Projection{{Kind: ProjectionField, Field: strs.Intern("a")}})
	if got := tbl.Label(fieldA, strs); got != "p.a" {
		t.Fatalf("label = %q", got)
	}
	idx := tbl.Project(tbl.Root(p), Projection{Kind: ProjectionIndex})
	if got := tbl.Label(idx, strs); got != "p[_]" {
		t.Fatalf("label = %q", got)
	}
}

func TestScopeContains(t *testing.T) {
	tbl, _ := newTestTable()
	outer := tbl.NewScope(NoScopeID)
	inner := tbl.NewScope(outer)
	sibling := tbl.NewScope(outer)

	if !tbl.ScopeContains(outer, inner) {
		t.Fatal("outer contains inner")
	}
	if !tbl.ScopeContains(outer, outer) {
		t.Fatal("a scope contains itself")
	}
	if tbl.ScopeContains(inner, sibling) {
		t.Fatal("siblings do not contain each other")
	}
}

func TestProjectionsRoundTrip(t *testing.T) {
	tbl, strs := newTestTable()
	scope := tbl.NewScope(NoScopeID)
	p := tbl.NewBinding(strs.Intern("p"), true, true, scope, source.Span{})

	path := []Projection{
		{Kind: ProjectionField, Field: strs.Intern("a")},
		{Kind: ProjectionIndex},
		{Kind: ProjectionField, Field: strs.Intern("x")},
	}
	id := tbl.Resolve(p, path)
	got := tbl.Projections(id)
	if len(got) != len(path) {
		t.Fatalf("projection count = %d, want %d", len(got), len(path))
	}
	for i := range path {
		if got[i] != path[i] {
			t.Fatalf("projection %d = %+v, want %+v", i, got[i], path[i])
		}
	}
}
