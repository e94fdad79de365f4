package borrowck

import (
	"reflect"
	"testing"

	"borrowck/internal/cfg"
	"borrowck/internal/diag"
	"borrowck/internal/liveness"
	"borrowck/internal/place"
	"borrowck/internal/source"
)

type testEnv struct {
	places  *place.Table
	strings *source.Interner
	scope   place.ScopeID
}

func newTestEnv() *testEnv {
	tbl := place.NewTable()
	return &testEnv{
		places:  tbl,
		strings: source.NewInterner(),
		scope:   tbl.NewScope(place.NoScopeID),
	}
}

func (env *testEnv) binding(name string) place.BindingID {
	return env.places.NewBinding(env.strings.Intern(name), true, true, env.scope, source.Span{})
}

func (env *testEnv) immutable(name string) place.BindingID {
	return env.places.NewBinding(env.strings.Intern(name), false, true, env.scope, source.Span{})
}

func (env *testEnv) copyable(name string) place.BindingID {
	return env.places.NewBinding(env.strings.Intern(name), true, false, env.scope, source.Span{})
}

func (env *testEnv) field(base place.BindingID, name string) place.PlaceID {
	return env.places.Resolve(base, []place.Projection{{Kind: place.ProjectionField, Field: env.strings.Intern(name)}})
}

func (env *testEnv) check(t *testing.T, ops []cfg.Op, opts Options) *diag.Bag {
	t.Helper()
	fn, err := cfg.Build(1, "main", source.Span{}, env.places, env.scope, ops)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	bag := diag.NewBag(64)
	opts.Reporter = diag.BagReporter{Bag: bag}
	opts.Strings = env.strings
	Check(fn, liveness.Analyze(fn), opts)
	return bag
}

func diagCodes(bag *diag.Bag) []diag.Code {
	codes := make([]diag.Code, 0, bag.Len())
	for _, d := range bag.Items() {
		codes = append(codes, d.Code)
	}
	return codes
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func decl(b place.BindingID, init bool) cfg.Op {
	return cfg.Op{Kind: cfg.OpDecl, Decl: cfg.DeclOp{Binding: b, Init: init}}
}

func read(pl place.PlaceID) cfg.Op {
	return cfg.Op{Kind: cfg.OpRead, Read: cfg.ReadOp{Place: pl}}
}

func borrow(dest place.BindingID, kind cfg.BorrowKind, pl place.PlaceID) cfg.Op {
	return cfg.Op{Kind: cfg.OpBorrow, Borrow: cfg.BorrowOp{Dest: dest, Kind: kind, Place: pl}}
}

func move(from place.PlaceID, dest place.BindingID) cfg.Op {
	return cfg.Op{Kind: cfg.OpMove, Move: cfg.MoveOp{From: from, Dest: dest}}
}

func ret() cfg.Op { return cfg.Op{Kind: cfg.OpReturn} }

// Two simultaneous shared borrows of the same place are fine, and both stay
// readable through the overlap.
func TestSharedBorrowsCoexist(t *testing.T) {
	env := newTestEnv()
	s := env.binding("s")
	ps := env.places.Root(s)
	r1 := env.binding("r1")
	r2 := env.binding("r2")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(r1, cfg.BorrowShared, ps),
		borrow(r2, cfg.BorrowShared, ps),
		read(env.places.Root(r1)),
		read(env.places.Root(r2)),
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

// A second exclusive borrow while the first is still live is an aliasing
// conflict, reported exactly once at the second borrow site.
func TestExclusiveBorrowsConflict(t *testing.T) {
	env := newTestEnv()
	s := env.binding("s")
	ps := env.places.Root(s)
	r1 := env.binding("r1")
	r2 := env.binding("r2")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(r1, cfg.BorrowExclusive, ps),
		borrow(r2, cfg.BorrowExclusive, ps),
		read(env.places.Root(r1)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckAliasingConflict}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// A shared borrow whose last use precedes an exclusive access does not
// conflict with it: the region ends at the last use, not at scope end.
func TestBorrowRegionEndsAtLastUse(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		borrow(r, cfg.BorrowShared, pv),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("print"),
			Args:   []cfg.CallArg{{Place: env.places.Root(r), Mode: cfg.ArgRead}},
		}},
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
		}},
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

// The exclusive access is rejected when the shared borrow is used again
// afterwards, since its region then spans the access.
func TestLiveSharedBorrowBlocksExclusive(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)
	r := env.binding("r")
	pr := env.places.Root(r)

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		borrow(r, cfg.BorrowShared, pv),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
		}},
		read(pr),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckAliasingConflict}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// Returning a borrow of a local is a dangling reference; returning a borrow
// of a parameter is fine.
func TestDanglingReference(t *testing.T) {
	env := newTestEnv()
	local := env.binding("tmp")
	r := env.binding("r")
	pr := env.places.Root(r)

	bag := env.check(t, []cfg.Op{
		decl(local, true),
		borrow(r, cfg.BorrowShared, env.places.Root(local)),
		{Kind: cfg.OpReturn, Return: cfg.ReturnOp{HasValue: true, Value: pr}},
	}, DefaultOptions())
	want := []diag.Code{diag.BckDanglingReference}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

func TestReturnBorrowOfParamOK(t *testing.T) {
	env := newTestEnv()
	p := env.places.NewParam(env.strings.Intern("input"), false, true, env.scope, source.Span{})
	r := env.binding("r")
	pr := env.places.Root(r)

	bag := env.check(t, []cfg.Op{
		borrow(r, cfg.BorrowShared, env.places.Root(p)),
		{Kind: cfg.OpReturn, Return: cfg.ReturnOp{HasValue: true, Value: pr}},
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

// Moving one field leaves the sibling usable; reading the whole aggregate
// afterwards is a use of a partially moved value.
func TestPartialMove(t *testing.T) {
	env := newTestEnv()
	pair := env.binding("pair")
	first := env.field(pair, "first")
	second := env.field(pair, "second")
	other := env.binding("other")

	bag := env.check(t, []cfg.Op{
		decl(pair, true),
		move(first, other),
		read(second),
		read(env.places.Root(pair)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckUseOfMovedValue}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

func TestPartialMoveOfWholeAllowedWhenConfigured(t *testing.T) {
	env := newTestEnv()
	pair := env.binding("pair")
	first := env.field(pair, "first")
	other := env.binding("other")

	opts := DefaultOptions()
	opts.PartialMoveOfWholeIsError = false
	bag := env.check(t, []cfg.Op{
		decl(pair, true),
		move(first, other),
		read(env.places.Root(pair)),
		ret(),
	}, opts)
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

func TestUseOfMovedValue(t *testing.T) {
	env := newTestEnv()
	a := env.binding("a")
	b := env.binding("b")

	bag := env.check(t, []cfg.Op{
		decl(a, true),
		move(env.places.Root(a), b),
		read(env.places.Root(a)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckUseOfMovedValue}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// Copy-classified bindings stay usable after assignment elsewhere.
func TestCopyBindingNotMoved(t *testing.T) {
	env := newTestEnv()
	n := env.copyable("n")
	m := env.binding("m")

	bag := env.check(t, []cfg.Op{
		decl(n, true),
		move(env.places.Root(n), m),
		read(env.places.Root(n)),
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

func TestUseOfUninitialized(t *testing.T) {
	env := newTestEnv()
	x := env.binding("x")

	bag := env.check(t, []cfg.Op{
		decl(x, false),
		read(env.places.Root(x)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckUseOfUninitialized}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// Initialization on only one branch is possible-uninitialized at the join.
func TestBranchInitJoin(t *testing.T) {
	env := newTestEnv()
	c := env.binding("cond")
	pc := env.places.Root(c)
	x := env.binding("x")
	px := env.places.Root(x)

	// 0: decl cond (init)
	// 1: decl x (uninit)
	// 2: if cond -> 3 else 4
	// 3: write x
	// 4: read x   <- x initialized only on the then-path
	bag := env.check(t, []cfg.Op{
		decl(c, true),
		decl(x, false),
		{Kind: cfg.OpBranch, Branch: cfg.BranchOp{Cond: pc, Then: 3, Else: 4}},
		{Kind: cfg.OpWrite, Write: cfg.WriteOp{Place: px}},
		read(px),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckUseOfUninitialized}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// A borrow of a scope-local binding still live when the scope ends outlives
// its owner.
func TestBorrowOutlivesOwner(t *testing.T) {
	env := newTestEnv()
	inner := env.places.NewScope(env.scope)
	short := env.places.NewBinding(env.strings.Intern("short"), true, true, inner, source.Span{})
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(r, false),
		decl(short, true),
		borrow(r, cfg.BorrowShared, env.places.Root(short)),
		{Kind: cfg.OpEndScope, EndScope: cfg.EndScopeOp{Scope: inner}},
		read(env.places.Root(r)),
		ret(),
	}, DefaultOptions())
	if !hasCode(bag, diag.BckBorrowOutlivesOwner) {
		t.Fatalf("diagnostics = %v, want borrow-outlives-owner", diagCodes(bag))
	}
}

// Disjoint sibling fields may hold an exclusive and a shared borrow at once;
// the whole aggregate conflicts with a field borrow.
func TestFieldBorrowDisjointness(t *testing.T) {
	env := newTestEnv()
	s := env.binding("s")
	fa := env.field(s, "a")
	fb := env.field(s, "b")
	ra := env.binding("ra")
	rb := env.binding("rb")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(ra, cfg.BorrowExclusive, fa),
		borrow(rb, cfg.BorrowShared, fb),
		read(env.places.Root(ra)),
		read(env.places.Root(rb)),
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("sibling fields must not conflict, got %v", diagCodes(bag))
	}

	env2 := newTestEnv()
	s2 := env2.binding("s")
	fa2 := env2.field(s2, "a")
	ra2 := env2.binding("ra")
	rw := env2.binding("rw")

	bag2 := env2.check(t, []cfg.Op{
		decl(s2, true),
		borrow(ra2, cfg.BorrowExclusive, fa2),
		borrow(rw, cfg.BorrowShared, env2.places.Root(s2)),
		read(env2.places.Root(ra2)),
		ret(),
	}, DefaultOptions())
	if !hasCode(bag2, diag.BckAliasingConflict) {
		t.Fatalf("whole-vs-field must conflict, got %v", diagCodes(bag2))
	}
}

// Receiver reservation tolerates argument reads of the receiver and of
// borrows that die during argument evaluation.
func TestTwoPhaseReceiverRead(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
			Args:   []cfg.CallArg{{Place: pv, Mode: cfg.ArgRead}},
		}},
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("reading the receiver during reservation must be fine, got %v", diagCodes(bag))
	}
}

// A pre-existing shared borrow whose last use is an argument of the call
// dies during argument evaluation, so the receiver activates cleanly.
func TestTwoPhaseSharedBorrowDiesInArguments(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		borrow(r, cfg.BorrowShared, pv),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
			Args:   []cfg.CallArg{{Place: env.places.Root(r), Mode: cfg.ArgRead}},
		}},
		ret(),
	}, DefaultOptions())
	if bag.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %v", diagCodes(bag))
	}
}

// An exclusive access to the receiver during the reserved window conflicts.
func TestTwoPhaseReceiverExclusiveArg(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
			Args:   []cfg.CallArg{{Place: pv, Mode: cfg.ArgBorrowExclusive}},
		}},
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckAliasingConflict}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

// A shared borrow still live at activation time conflicts with the
// receiver's exclusive borrow.
func TestTwoPhaseActivationConflict(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		borrow(r, cfg.BorrowShared, pv),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("push"),
			Recv:   pv,
		}},
		read(env.places.Root(r)),
		ret(),
	}, DefaultOptions())
	if !hasCode(bag, diag.BckAliasingConflict) {
		t.Fatalf("diagnostics = %v, want aliasing conflict", diagCodes(bag))
	}
}

// Moving an argument out while the receiver holds a reservation of the same
// place conflicts.
func TestTwoPhaseMoveOfReceiverArg(t *testing.T) {
	env := newTestEnv()
	v := env.binding("v")
	pv := env.places.Root(v)

	bag := env.check(t, []cfg.Op{
		decl(v, true),
		{Kind: cfg.OpCall, Call: cfg.CallOp{
			Callee: env.strings.Intern("consume"),
			Recv:   pv,
			Args:   []cfg.CallArg{{Place: pv, Mode: cfg.ArgMove}},
		}},
		ret(),
	}, DefaultOptions())
	if !hasCode(bag, diag.BckAliasingConflict) {
		t.Fatalf("diagnostics = %v, want aliasing conflict", diagCodes(bag))
	}
}

func TestExclusiveBorrowOfImmutable(t *testing.T) {
	env := newTestEnv()
	s := env.immutable("s")
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(r, cfg.BorrowExclusive, env.places.Root(s)),
		read(env.places.Root(r)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckExclusiveOfImmutable}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

func TestWriteThroughSharedBorrow(t *testing.T) {
	env := newTestEnv()
	s := env.binding("s")
	r := env.binding("r")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(r, cfg.BorrowShared, env.places.Root(s)),
		{Kind: cfg.OpUseBorrow, UseBorrow: cfg.UseBorrowOp{Ref: r, Write: true}},
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckWriteThroughShared}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

func TestMoveWhileBorrowed(t *testing.T) {
	env := newTestEnv()
	s := env.binding("s")
	r := env.binding("r")
	other := env.binding("other")

	bag := env.check(t, []cfg.Op{
		decl(s, true),
		borrow(r, cfg.BorrowShared, env.places.Root(s)),
		move(env.places.Root(s), other),
		read(env.places.Root(r)),
		ret(),
	}, DefaultOptions())
	want := []diag.Code{diag.BckAliasingConflict}
	if !reflect.DeepEqual(diagCodes(bag), want) {
		t.Fatalf("diagnostics = %v, want %v", diagCodes(bag), want)
	}
}

func TestStopOnFirstError(t *testing.T) {
	env := newTestEnv()
	a := env.binding("a")
	b := env.binding("b")

	opts := DefaultOptions()
	opts.StopOnFirstError = true
	bag := env.check(t, []cfg.Op{
		decl(a, false),
		decl(b, false),
		read(env.places.Root(a)),
		read(env.places.Root(b)),
		ret(),
	}, opts)
	if bag.Len() != 1 {
		t.Fatalf("expected exactly one diagnostic, got %v", diagCodes(bag))
	}
}

// Identical inputs produce byte-identical diagnostic sequences.
func TestDeterministicOutput(t *testing.T) {
	run := func() []diag.Diagnostic {
		env := newTestEnv()
		s := env.binding("s")
		ps := env.places.Root(s)
		r1 := env.binding("r1")
		r2 := env.binding("r2")
		x := env.binding("x")

		bag := env.check(t, []cfg.Op{
			decl(s, true),
			decl(x, false),
			borrow(r1, cfg.BorrowExclusive, ps),
			borrow(r2, cfg.BorrowExclusive, ps),
			read(env.places.Root(x)),
			read(env.places.Root(r1)),
			ret(),
		}, DefaultOptions())
		return bag.Items()
	}
	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%v\n%v", first, second)
	}
}
