// Package liveness computes, per binding, the program points at which its
// current value may still be read later. Borrow regions end at the last live
// use of the binding holding the borrow, which is what gives borrows their
// non-lexical extents.
package liveness

import (
	"borrowck/internal/cfg"
	"borrowck/internal/place"
)

// Set is a set of live bindings.
type Set map[place.BindingID]struct{}

func (s Set) has(id place.BindingID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s Set) equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.has(id) {
			return false
		}
	}
	return true
}

// TermIndex is the virtual op index of a block's terminator in last-use
// queries: the terminator executes after every op of the block.
const TermIndex = int(^uint(0) >> 1)

// Result holds per-block live sets and last-use positions after the dataflow
// has converged.
type Result struct {
	fn      *cfg.Func
	liveIn  []Set
	liveOut []Set
	lastUse []map[place.BindingID]int
}

// Analyze runs the backward dataflow to its fixed point:
//
//	liveOut(b) = union of liveIn(succ)
//	liveIn(b)  = (liveOut(b) - killed(b)) + used(b)
//
// where used marks reads and killed marks declarations, full overwrites,
// whole moves, and scope ends.
func Analyze(fn *cfg.Func) *Result {
	n := len(fn.Blocks)
	res := &Result{
		fn:      fn,
		liveIn:  make([]Set, n),
		liveOut: make([]Set, n),
		lastUse: make([]map[place.BindingID]int, n),
	}
	for i := 0; i < n; i++ {
		res.liveIn[i] = make(Set)
		res.liveOut[i] = make(Set)
	}

	scopeBindings := collectScopeBindings(fn.Places)

	// Iterate in postorder (reversed flow order) so most of the graph
	// converges in one sweep; loops need the extra rounds.
	order := make([]cfg.BlockID, 0, n)
	flow := fn.FlowOrder()
	for i := len(flow) - 1; i >= 0; i-- {
		order = append(order, flow[i])
	}
	for i := range fn.Blocks {
		if fn.Blocks[i].Unreachable {
			order = append(order, fn.Blocks[i].ID)
		}
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order {
			block := fn.Block(id)
			out := make(Set)
			for _, succ := range block.Term.Successors(nil) {
				for b := range res.liveIn[succ] {
					out[b] = struct{}{}
				}
			}
			in := transfer(fn, block, out.clone(), scopeBindings)
			if !out.equal(res.liveOut[id]) || !in.equal(res.liveIn[id]) {
				changed = true
			}
			res.liveOut[id] = out
			res.liveIn[id] = in
		}
	}

	for i := range fn.Blocks {
		res.lastUse[i] = blockLastUses(fn, &fn.Blocks[i])
	}
	return res
}

// transfer applies the block's ops backward to the live-out set, producing
// live-in. The terminator executes last, so it is applied first.
func transfer(fn *cfg.Func, block *cfg.Block, live Set, scopeBindings map[place.ScopeID][]place.BindingID) Set {
	for _, used := range termUses(fn, block.Term) {
		if used.IsValid() {
			live[used] = struct{}{}
		}
	}
	for i := len(block.Ops) - 1; i >= 0; i-- {
		op := &block.Ops[i]
		for _, killed := range opKills(fn, op, scopeBindings) {
			delete(live, killed)
		}
		for _, used := range opUses(fn, op) {
			if used.IsValid() {
				live[used] = struct{}{}
			}
		}
	}
	return live
}

func termUses(fn *cfg.Func, term cfg.Terminator) []place.BindingID {
	switch term.Kind {
	case cfg.TermIf:
		if term.If.Cond.IsValid() {
			return []place.BindingID{fn.Places.Base(term.If.Cond)}
		}
	case cfg.TermReturn:
		if term.Return.HasValue {
			return []place.BindingID{fn.Places.Base(term.Return.Value)}
		}
	}
	return nil
}

func opUses(fn *cfg.Func, op *cfg.Op) []place.BindingID {
	root := func(id place.PlaceID) place.BindingID {
		return fn.Places.Base(id)
	}
	switch op.Kind {
	case cfg.OpRead:
		return []place.BindingID{root(op.Read.Place)}
	case cfg.OpBorrow:
		// The referent's value stays observable through the borrow.
		return []place.BindingID{root(op.Borrow.Place)}
	case cfg.OpUseBorrow:
		return []place.BindingID{op.UseBorrow.Ref}
	case cfg.OpMove:
		return []place.BindingID{root(op.Move.From)}
	case cfg.OpCall:
		uses := make([]place.BindingID, 0, len(op.Call.Args)+1)
		if op.Call.Recv.IsValid() {
			uses = append(uses, root(op.Call.Recv))
		}
		for _, arg := range op.Call.Args {
			uses = append(uses, root(arg.Place))
		}
		return uses
	}
	return nil
}

func opKills(fn *cfg.Func, op *cfg.Op, scopeBindings map[place.ScopeID][]place.BindingID) []place.BindingID {
	switch op.Kind {
	case cfg.OpDecl:
		return []place.BindingID{op.Decl.Binding}
	case cfg.OpWrite:
		// Only a whole-binding write fully overwrites the prior value.
		if !fn.Places.Parent(op.Write.Place).IsValid() {
			return []place.BindingID{fn.Places.Base(op.Write.Place)}
		}
	case cfg.OpMove:
		kills := make([]place.BindingID, 0, 2)
		if !fn.Places.Parent(op.Move.From).IsValid() {
			kills = append(kills, fn.Places.Base(op.Move.From))
		}
		if op.Move.Dest.IsValid() {
			kills = append(kills, op.Move.Dest)
		}
		return kills
	case cfg.OpBorrow:
		return []place.BindingID{op.Borrow.Dest}
	case cfg.OpCall:
		if op.Call.Dest.IsValid() {
			return []place.BindingID{op.Call.Dest}
		}
	case cfg.OpEndScope:
		return scopeBindings[op.EndScope.Scope]
	}
	return nil
}

func collectScopeBindings(tbl *place.Table) map[place.ScopeID][]place.BindingID {
	out := make(map[place.ScopeID][]place.BindingID)
	for _, b := range tbl.Bindings() {
		out[b.Scope] = append(out[b.Scope], b.ID)
	}
	return out
}

// blockLastUses records, per binding, the index of the last op in the block
// that uses it. Terminator uses are recorded at TermIndex.
func blockLastUses(fn *cfg.Func, block *cfg.Block) map[place.BindingID]int {
	out := make(map[place.BindingID]int)
	for i := range block.Ops {
		for _, used := range opUses(fn, &block.Ops[i]) {
			if used.IsValid() {
				out[used] = i
			}
		}
	}
	if block.Term.Kind == cfg.TermIf && block.Term.If.Cond.IsValid() {
		out[fn.Places.Base(block.Term.If.Cond)] = TermIndex
	}
	if block.Term.Kind == cfg.TermReturn && block.Term.Return.HasValue {
		out[fn.Places.Base(block.Term.Return.Value)] = TermIndex
	}
	return out
}

// LiveIn reports whether the binding is live on entry to the block.
func (r *Result) LiveIn(block cfg.BlockID, binding place.BindingID) bool {
	if r == nil || int(block) >= len(r.liveIn) {
		return false
	}
	return r.liveIn[block].has(binding)
}

// LiveOut reports whether the binding is live on exit from the block.
func (r *Result) LiveOut(block cfg.BlockID, binding place.BindingID) bool {
	if r == nil || int(block) >= len(r.liveOut) {
		return false
	}
	return r.liveOut[block].has(binding)
}

// LastUse returns the index of the last op in the block that uses the
// binding (TermIndex for terminator uses), or false when the block never
// uses it.
func (r *Result) LastUse(block cfg.BlockID, binding place.BindingID) (int, bool) {
	if r == nil || int(block) >= len(r.lastUse) {
		return 0, false
	}
	idx, ok := r.lastUse[block][binding]
	return idx, ok
}
