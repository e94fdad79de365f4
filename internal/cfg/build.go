package cfg

import (
	"fmt"
	"sort"

	"fortio.org/safecast"

	"borrowck/internal/place"
	"borrowck/internal/source"
)

// Build splits the front end's flat operation list into basic blocks. Blocks
// begin at the list head, at every branch target, and after every branching
// or returning operation. A branch target one past the end of the list, or a
// list that falls off the end, resolves to a synthetic plain-return block.
// Unreachable blocks are retained but flagged.
func Build(id FuncID, name string, span source.Span, places *place.Table, rootScope place.ScopeID, ops []Op) (*Func, error) {
	fn := &Func{
		ID:        id,
		Name:      name,
		Span:      span,
		Places:    places,
		RootScope: rootScope,
	}
	if err := buildBlocks(fn, ops); err != nil {
		return nil, err
	}
	finalize(fn)
	return fn, nil
}

func buildBlocks(fn *Func, ops []Op) error {
	leaders := map[int]struct{}{0: {}}
	needExit := len(ops) == 0
	noteTarget := func(i, target int) error {
		if target < 0 || target > len(ops) {
			return fmt.Errorf("op %d: branch target %d out of range", i, target)
		}
		if target == len(ops) {
			needExit = true
		} else {
			leaders[target] = struct{}{}
		}
		return nil
	}

	for i, op := range ops {
		switch op.Kind {
		case OpInvalid:
			return fmt.Errorf("op %d: invalid operation kind", i)
		case OpBranch:
			if err := noteTarget(i, op.Branch.Then); err != nil {
				return err
			}
			if op.Branch.Cond.IsValid() {
				if err := noteTarget(i, op.Branch.Else); err != nil {
					return err
				}
			}
			if i+1 < len(ops) {
				leaders[i+1] = struct{}{}
			}
		case OpReturn:
			if i+1 < len(ops) {
				leaders[i+1] = struct{}{}
			}
		}
	}

	// The final block needs a fallthrough target when it does not end in a
	// branch or return of its own.
	if len(ops) > 0 {
		switch ops[len(ops)-1].Kind {
		case OpBranch, OpReturn:
		default:
			needExit = true
		}
	}

	starts := make([]int, 0, len(leaders))
	for idx := range leaders {
		starts = append(starts, idx)
	}
	sort.Ints(starts)

	blockAt := make(map[int]BlockID, len(starts))
	for _, start := range starts {
		value, err := safecast.Conv[uint32](len(fn.Blocks))
		if err != nil {
			return fmt.Errorf("block count overflow: %w", err)
		}
		blockAt[start] = BlockID(value)
		fn.Blocks = append(fn.Blocks, Block{ID: BlockID(value)})
	}
	exitID := BlockID(len(fn.Blocks))
	if needExit {
		fn.Blocks = append(fn.Blocks, Block{ID: exitID, Term: Terminator{Kind: TermReturn}})
	}
	resolve := func(target int) BlockID {
		if target == len(ops) {
			return exitID
		}
		return blockAt[target]
	}

	for bi, start := range starts {
		end := len(ops)
		if bi+1 < len(starts) {
			end = starts[bi+1]
		}
		block := &fn.Blocks[blockAt[start]]
		for i := start; i < end; i++ {
			op := ops[i]
			switch op.Kind {
			case OpBranch:
				if op.Branch.Cond.IsValid() {
					block.Term = Terminator{Kind: TermIf, Span: op.Span, If: IfTerm{
						Cond: op.Branch.Cond,
						Then: resolve(op.Branch.Then),
						Else: resolve(op.Branch.Else),
					}}
				} else {
					block.Term = Terminator{Kind: TermGoto, Span: op.Span, Goto: GotoTerm{Target: resolve(op.Branch.Then)}}
				}
			case OpReturn:
				block.Term = Terminator{Kind: TermReturn, Span: op.Span, Return: ReturnTerm(op.Return)}
			default:
				block.Ops = append(block.Ops, op)
			}
		}
		if !block.Terminated() {
			block.Term = Terminator{Kind: TermGoto, Goto: GotoTerm{Target: resolve(end)}}
		}
	}

	fn.Entry = 0
	return nil
}

// finalize computes predecessors, reachability flags, and the reverse
// postorder flow order.
func finalize(fn *Func) {
	n := len(fn.Blocks)
	fn.preds = make([][]BlockID, n)
	var scratch []BlockID
	for i := range fn.Blocks {
		scratch = fn.Blocks[i].Term.Successors(scratch[:0])
		for _, succ := range scratch {
			if int(succ) < n {
				fn.preds[succ] = append(fn.preds[succ], fn.Blocks[i].ID)
			}
		}
	}

	visited := make([]bool, n)
	post := make([]BlockID, 0, n)
	var dfs func(BlockID)
	dfs = func(id BlockID) {
		if int(id) >= n || visited[id] {
			return
		}
		visited[id] = true
		for _, succ := range fn.Blocks[id].Term.Successors(nil) {
			dfs(succ)
		}
		post = append(post, id)
	}
	dfs(fn.Entry)

	fn.rpo = make([]BlockID, 0, len(post))
	for i := len(post) - 1; i >= 0; i-- {
		fn.rpo = append(fn.rpo, post[i])
	}
	for i := range fn.Blocks {
		fn.Blocks[i].Unreachable = !visited[i]
	}
}
