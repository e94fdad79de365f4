package borrowck

import (
	"borrowck/internal/cfg"
	"borrowck/internal/diag"
	"borrowck/internal/liveness"
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// Options configures one checker run. The zero value collects every
// diagnostic; construct through DefaultOptions to get the strict
// partial-move policy.
type Options struct {
	Reporter diag.Reporter
	Strings  *source.Interner

	// StopOnFirstError aborts the walk after the first error diagnostic.
	StopOnFirstError bool
	// PartialMoveOfWholeIsError rejects by-value use of an aggregate with a
	// moved-out projection. Sibling projections stay usable either way.
	PartialMoveOfWholeIsError bool
}

// DefaultOptions returns the standard checking policy.
func DefaultOptions() Options {
	return Options{PartialMoveOfWholeIsError: true}
}

// Result carries the artifacts of one function walk.
type Result struct {
	Borrows *Table
	Errors  int
}

// Check walks fn in flow order, enforcing exclusivity, move/initialization,
// and lifetime rules at every program point. Regions close at the borrow
// holder's last live use as computed by the liveness result, not at lexical
// block ends. Unreachable blocks are skipped. Re-running Check on the same
// inputs produces identical diagnostics in identical order.
func Check(fn *cfg.Func, live *liveness.Result, opts Options) *Result {
	c := &checker{
		fn:      fn,
		live:    live,
		opts:    opts,
		borrows: NewTable(fn.Places),
		exits:   make(map[cfg.BlockID]*valueState),
	}
	c.run()
	return &Result{Borrows: c.borrows, Errors: c.errors}
}

type checker struct {
	fn      *cfg.Func
	live    *liveness.Result
	opts    Options
	borrows *Table
	state   *valueState
	exits   map[cfg.BlockID]*valueState
	errors  int
	stopped bool
}

func (c *checker) run() {
	for _, id := range c.fn.FlowOrder() {
		if c.stopped {
			return
		}
		block := c.fn.Block(id)
		c.enterBlock(block)
		for i := range block.Ops {
			if c.stopped {
				return
			}
			point := cfg.ProgramPoint{Block: id, Index: uint32(i)}
			c.op(&block.Ops[i], point)
			c.expireAfterOp(id, i)
		}
		if c.stopped {
			return
		}
		c.terminator(block)
		c.state.active = append(c.state.active[:0], c.borrows.Active()...)
		c.exits[id] = c.state
	}
}

// enterBlock computes the block's entry state as the join over already
// processed predecessors (back edges contribute nothing; see DESIGN notes),
// then expires borrows whose holder is no longer live on entry.
func (c *checker) enterBlock(block *cfg.Block) {
	state := newValueState()
	if block.ID == c.fn.Entry {
		for _, b := range c.fn.Places.Bindings() {
			if b.Param {
				state.status[b.ID] = statusInit
			}
		}
	}
	joined := false
	for _, pred := range c.fn.Preds(block.ID) {
		if exit, ok := c.exits[pred]; ok {
			if !joined {
				state = exit.clone()
				joined = true
			} else {
				state.join(exit)
			}
		}
	}
	c.state = state
	c.borrows.SetActive(state.active)

	// A borrow whose holder's value cannot be read in or after this block
	// ended on the incoming edge.
	for _, id := range append([]BorrowID(nil), c.borrows.Active()...) {
		info := c.borrows.Info(id)
		if info == nil || !info.Holder.IsValid() {
			continue
		}
		if _, usedHere := c.live.LastUse(block.ID, info.Holder); usedHere {
			continue
		}
		if !c.live.LiveIn(block.ID, info.Holder) {
			c.endBorrow(id)
		}
	}
}

// expireAfterOp closes every borrow whose holder had its last live use at op
// index i of the block. This is the non-lexical region end.
func (c *checker) expireAfterOp(blockID cfg.BlockID, i int) {
	for _, id := range append([]BorrowID(nil), c.borrows.Active()...) {
		info := c.borrows.Info(id)
		if info == nil || !info.Holder.IsValid() {
			continue
		}
		last, ok := c.live.LastUse(blockID, info.Holder)
		if ok && last == i && !c.live.LiveOut(blockID, info.Holder) {
			c.endBorrow(id)
		}
	}
}

func (c *checker) endBorrow(id BorrowID) {
	info := c.borrows.Info(id)
	c.borrows.End(id)
	if info != nil && info.Holder.IsValid() && c.state.holder[info.Holder] == id {
		delete(c.state.holder, info.Holder)
	}
}

func (c *checker) op(op *cfg.Op, point cfg.ProgramPoint) {
	switch op.Kind {
	case cfg.OpDecl:
		c.declBinding(op.Decl.Binding, op.Decl.Init)
	case cfg.OpRead:
		c.readValue(op.Read.Place, op.Span)
	case cfg.OpWrite:
		c.writePlace(op.Write.Place, op.Span)
	case cfg.OpBorrow:
		c.createBorrow(op.Borrow.Dest, op.Borrow.Kind, op.Borrow.Place, op.Span, point)
	case cfg.OpUseBorrow:
		c.useBorrow(op.UseBorrow.Ref, op.UseBorrow.Write, op.Span)
	case cfg.OpMove:
		c.moveOut(op.Move.From, op.Move.Dest, op.Span)
	case cfg.OpCall:
		c.checkCall(op, point)
	case cfg.OpEndScope:
		c.endScope(op.EndScope.Scope, op.Span)
	}
}

func (c *checker) terminator(block *cfg.Block) {
	term := &block.Term
	switch term.Kind {
	case cfg.TermIf:
		if term.If.Cond.IsValid() {
			c.readValue(term.If.Cond, term.Span)
		}
	case cfg.TermReturn:
		if term.Return.HasValue {
			c.checkReturn(term.Return.Value, term.Span)
		}
	}
}

func (c *checker) declBinding(id place.BindingID, init bool) {
	if !id.IsValid() {
		return
	}
	if old, ok := c.state.holder[id]; ok {
		c.endBorrow(old)
	}
	if init {
		c.state.status[id] = statusInit
	} else {
		c.state.status[id] = statusUninit
	}
	c.state.clearMovedUnder(c.fn.Places, c.fn.Places.Root(id))
}

// checkUsable verifies the place holds a value: declared, initialized, and
// not (partially) moved away. Reports at most one diagnostic per call.
func (c *checker) checkUsable(pl place.PlaceID, span source.Span) bool {
	root := c.fn.Places.Base(pl)
	switch c.state.status[root] {
	case statusInit:
	case statusDead, statusUninit:
		c.report(diag.BckUseOfUninitialized, span,
			"use of possibly uninitialized '%s'", c.bindingLabel(root)).Emit()
		return false
	default:
		// Never declared on this path: the front end guarantees
		// declaration dominates use, so treat it as uninitialized.
		c.report(diag.BckUseOfUninitialized, span,
			"use of possibly uninitialized '%s'", c.bindingLabel(root)).Emit()
		return false
	}
	for _, moved := range c.state.movedPlaces() {
		movedAt := c.state.moved[moved]
		if c.fn.Places.IsPrefixOf(moved, pl) {
			c.report(diag.BckUseOfMovedValue, span,
				"use of moved value '%s'", c.placeLabel(pl)).
				WithNote(movedAt, "value moved here").Emit()
			return false
		}
		if c.opts.PartialMoveOfWholeIsError && c.fn.Places.IsPrefixOf(pl, moved) {
			c.report(diag.BckUseOfMovedValue, span,
				"use of partially moved value '%s'", c.placeLabel(pl)).
				WithNote(movedAt, "partial move occurred here").Emit()
			return false
		}
	}
	return true
}

// readValue checks a by-value read of pl: the place must be usable and not
// overlap an activated exclusive borrow.
func (c *checker) readValue(pl place.PlaceID, span source.Span) {
	if !pl.IsValid() || !c.checkUsable(pl, span) {
		return
	}
	if issue := c.borrows.ReadAllowed(pl); issue.Kind != IssueNone {
		c.reportConflict(span, issue, "cannot read '%s' while it is exclusively borrowed", c.placeLabel(pl))
	}
}

func (c *checker) writePlace(pl place.PlaceID, span source.Span) {
	if !pl.IsValid() {
		return
	}
	if issue := c.borrows.MutationAllowed(pl); issue.Kind != IssueNone {
		c.reportConflict(span, issue, "cannot write to '%s' while it is borrowed", c.placeLabel(pl))
	}
	root := c.fn.Places.Base(pl)
	if !c.fn.Places.Parent(pl).IsValid() {
		// Whole-binding write: reinitializes the slot and invalidates any
		// borrow previously held in it.
		if old, ok := c.state.holder[root]; ok {
			c.endBorrow(old)
		}
		c.state.status[root] = statusInit
	}
	c.state.clearMovedUnder(c.fn.Places, pl)
}

func (c *checker) createBorrow(dest place.BindingID, kind cfg.BorrowKind, pl place.PlaceID, span source.Span, point cfg.ProgramPoint) {
	if !pl.IsValid() || !dest.IsValid() {
		return
	}
	if !c.checkUsable(pl, span) {
		return
	}
	if old, ok := c.state.holder[dest]; ok {
		c.endBorrow(old)
	}
	if kind == cfg.BorrowExclusive && !c.ensureMutablePlace(pl, span) {
		// Poison the destination so downstream uses don't cascade.
		c.state.status[dest] = statusInit
		return
	}
	id, issue := c.borrows.Begin(kind, PhaseActive, pl, dest, span, point)
	if issue.Kind != IssueNone {
		c.reportConflict(span, issue, "cannot borrow '%s' as %s", c.placeLabel(pl), kind)
		c.state.status[dest] = statusInit
		return
	}
	c.state.holder[dest] = id
	c.state.status[dest] = statusInit
}

func (c *checker) useBorrow(ref place.BindingID, write bool, span source.Span) {
	if !ref.IsValid() {
		return
	}
	if !c.checkUsable(c.fn.Places.Root(ref), span) {
		return
	}
	id, ok := c.state.holder[ref]
	if !ok {
		return
	}
	info := c.borrows.Info(id)
	if info == nil {
		return
	}
	if write && info.Kind == cfg.BorrowShared {
		c.report(diag.BckWriteThroughShared, span,
			"cannot write through shared borrow held by '%s'", c.bindingLabel(ref)).
			WithNote(info.Span, "shared borrow created here").Emit()
	}
}

func (c *checker) moveOut(from place.PlaceID, dest place.BindingID, span source.Span) {
	if !from.IsValid() {
		return
	}
	if !c.checkUsable(from, span) {
		return
	}
	root := c.fn.Places.Base(from)
	binding := c.fn.Places.Binding(root)
	if binding != nil && !binding.ByMove {
		// Copy-classified bindings duplicate on assignment; this is a read.
		if issue := c.borrows.ReadAllowed(from); issue.Kind != IssueNone {
			c.reportConflict(span, issue, "cannot read '%s' while it is exclusively borrowed", c.placeLabel(from))
		}
		if dest.IsValid() {
			c.state.status[dest] = statusInit
		}
		return
	}
	if issue := c.borrows.MoveAllowed(from); issue.Kind != IssueNone {
		c.reportConflict(span, issue, "cannot move out of '%s' while it is borrowed", c.placeLabel(from))
		return
	}
	c.state.moved[from] = span
	if dest.IsValid() {
		if old, ok := c.state.holder[dest]; ok {
			c.endBorrow(old)
		}
		c.state.status[dest] = statusInit
		// Moving a ref binding wholesale transfers the borrow it holds.
		if !c.fn.Places.Parent(from).IsValid() {
			if held, ok := c.state.holder[root]; ok {
				c.state.holder[dest] = held
				hi := c.borrows.Info(held)
				if hi != nil {
					hi.Holder = dest
				}
				delete(c.state.holder, root)
			}
		}
	}
}

func (c *checker) endScope(scope place.ScopeID, span source.Span) {
	dying := c.fn.Places.BindingsIn(scope)

	// Borrows held by dying bindings end with them.
	for _, d := range dying {
		if id, ok := c.state.holder[d]; ok {
			c.endBorrow(id)
		}
	}
	// Any borrow of a dying binding still active here would outlive its
	// owner: its holder survives the scope and may still use it.
	for _, d := range dying {
		for _, id := range append([]BorrowID(nil), c.borrows.Active()...) {
			info := c.borrows.Info(id)
			if info == nil || c.fn.Places.Base(info.Place) != d {
				continue
			}
			c.report(diag.BckBorrowOutlivesOwner, span,
				"borrow of '%s' outlives its owner's scope", c.bindingLabel(d)).
				WithNote(info.Span, "borrow created here").Emit()
			c.endBorrow(id)
		}
	}
	for _, d := range dying {
		c.state.status[d] = statusDead
		c.state.clearMovedUnder(c.fn.Places, c.fn.Places.Root(d))
	}
}

// checkReturn handles a value-carrying return: the value must be usable,
// and a returned borrow must not point at function-local storage.
func (c *checker) checkReturn(pl place.PlaceID, span source.Span) {
	if !pl.IsValid() {
		return
	}
	if !c.checkUsable(pl, span) {
		return
	}
	root := c.fn.Places.Base(pl)
	id, ok := c.state.holder[root]
	if !ok {
		return
	}
	info := c.borrows.Info(id)
	if info == nil {
		return
	}
	refRoot := c.fn.Places.Base(info.Place)
	binding := c.fn.Places.Binding(refRoot)
	if binding == nil || binding.Param {
		return
	}
	c.report(diag.BckDanglingReference, span,
		"returning a reference to local '%s'", c.bindingLabel(refRoot)).
		WithNote(info.Span, "borrow created here").
		WithNote(binding.Span, "local declared here").Emit()
}

func (c *checker) ensureMutablePlace(pl place.PlaceID, span source.Span) bool {
	root := c.fn.Places.Base(pl)
	binding := c.fn.Places.Binding(root)
	if binding == nil {
		return false
	}
	if !binding.Mutable {
		c.report(diag.BckExclusiveOfImmutable, span,
			"cannot take exclusive borrow of immutable binding '%s'", c.bindingLabel(root)).Emit()
		return false
	}
	return true
}
