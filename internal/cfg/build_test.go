package cfg

import (
	"testing"

	"borrowck/internal/place"
	"borrowck/internal/source"
)

type testFuncEnv struct {
	places  *place.Table
	strings *source.Interner
	scope   place.ScopeID
}

func newTestEnv() *testFuncEnv {
	tbl := place.NewTable()
	return &testFuncEnv{
		places:  tbl,
		strings: source.NewInterner(),
		scope:   tbl.NewScope(place.NoScopeID),
	}
}

func (env *testFuncEnv) binding(name string) place.BindingID {
	return env.places.NewBinding(env.strings.Intern(name), true, true, env.scope, source.Span{})
}

func (env *testFuncEnv) build(t *testing.T, ops []Op) *Func {
	t.Helper()
	fn, err := Build(1, "main", source.Span{}, env.places, env.scope, ops)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Validate(fn); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return fn
}

func TestBuildStraightLine(t *testing.T) {
	env := newTestEnv()
	x := env.binding("x")
	px := env.places.Root(x)

	fn := env.build(t, []Op{
		{Kind: OpDecl, Decl: DeclOp{Binding: x, Init: true}},
		{Kind: OpRead, Read: ReadOp{Place: px}},
		{Kind: OpReturn},
	})

	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	if fn.Blocks[0].Term.Kind != TermReturn {
		t.Fatalf("terminator = %v", fn.Blocks[0].Term.Kind)
	}
	if len(fn.Blocks[0].Ops) != 2 {
		t.Fatalf("expected 2 ops in entry block, got %d", len(fn.Blocks[0].Ops))
	}
}

func TestBuildDiamond(t *testing.T) {
	env := newTestEnv()
	c := env.binding("cond")
	pc := env.places.Root(c)
	x := env.binding("x")
	px := env.places.Root(x)

	// 0: decl cond
	// 1: if cond -> 2 else 4
	// 2: read x
	// 3: goto 5
	// 4: read x
	// 5: return
	fn := env.build(t, []Op{
		{Kind: OpDecl, Decl: DeclOp{Binding: c, Init: true}},
		{Kind: OpBranch, Branch: BranchOp{Cond: pc, Then: 2, Else: 4}},
		{Kind: OpRead, Read: ReadOp{Place: px}},
		{Kind: OpBranch, Branch: BranchOp{Then: 5}},
		{Kind: OpRead, Read: ReadOp{Place: px}},
		{Kind: OpReturn},
	})

	if len(fn.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(fn.Blocks))
	}
	entry := fn.Block(fn.Entry)
	if entry.Term.Kind != TermIf {
		t.Fatalf("entry terminator = %v", entry.Term.Kind)
	}
	join := entry.Term.If
	if join.Then == join.Else {
		t.Fatal("then and else must differ")
	}
	preds := fn.Preds(3)
	if len(preds) != 2 {
		t.Fatalf("join block should have 2 predecessors, got %v", preds)
	}
	order := fn.FlowOrder()
	if len(order) != 4 || order[0] != fn.Entry {
		t.Fatalf("flow order = %v", order)
	}
}

func TestBuildFlagsUnreachable(t *testing.T) {
	env := newTestEnv()
	x := env.binding("x")
	px := env.places.Root(x)

	// 0: return
	// 1: read x   <- dead
	// 2: return
	fn := env.build(t, []Op{
		{Kind: OpReturn},
		{Kind: OpRead, Read: ReadOp{Place: px}},
		{Kind: OpReturn},
	})

	if len(fn.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(fn.Blocks))
	}
	if fn.Blocks[0].Unreachable {
		t.Fatal("entry block must be reachable")
	}
	if !fn.Blocks[1].Unreachable {
		t.Fatal("dead block must be flagged unreachable")
	}
	for _, id := range fn.FlowOrder() {
		if fn.Blocks[id].Unreachable {
			t.Fatalf("flow order contains unreachable block %d", id)
		}
	}
}

func TestBuildImplicitReturn(t *testing.T) {
	env := newTestEnv()
	x := env.binding("x")
	px := env.places.Root(x)

	fn := env.build(t, []Op{
		{Kind: OpRead, Read: ReadOp{Place: px}},
	})

	last := fn.Blocks[len(fn.Blocks)-1]
	if last.Term.Kind != TermReturn {
		t.Fatalf("expected synthetic return, got %v", last.Term.Kind)
	}
}

func TestBuildRejectsBadTarget(t *testing.T) {
	env := newTestEnv()
	c := env.binding("cond")
	pc := env.places.Root(c)

	_, err := Build(1, "main", source.Span{}, env.places, env.scope, []Op{
		{Kind: OpBranch, Branch: BranchOp{Cond: pc, Then: 99, Else: 0}},
	})
	if err == nil {
		t.Fatal("expected out-of-range target error")
	}
}

func TestValidateRejectsInvalidPlace(t *testing.T) {
	env := newTestEnv()
	fn, err := Build(1, "main", source.Span{}, env.places, env.scope, []Op{
		{Kind: OpRead, Read: ReadOp{Place: place.NoPlaceID}},
		{Kind: OpReturn},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Validate(fn); err == nil {
		t.Fatal("expected validation error for invalid read place")
	}
}
