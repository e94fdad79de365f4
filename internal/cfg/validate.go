package cfg

import (
	"errors"
	"fmt"
)

// Validate checks structural invariants of a built function:
//
//  1. Every block is terminated, and only terminal blocks lack successors.
//  2. All terminator targets name existing blocks.
//  3. Flat-list control ops never appear inside a block's op run.
//  4. Every referenced place, binding, and scope exists in the tables.
//
// Returns a joined error listing every violation.
func Validate(fn *Func) error {
	if fn == nil {
		return nil
	}
	var errs []error

	if int(fn.Entry) >= len(fn.Blocks) {
		errs = append(errs, fmt.Errorf("entry block %d does not exist", fn.Entry))
	}

	var scratch []BlockID
	for i := range fn.Blocks {
		block := &fn.Blocks[i]
		if !block.Terminated() {
			errs = append(errs, fmt.Errorf("block %d: not terminated", block.ID))
		}
		scratch = block.Term.Successors(scratch[:0])
		for _, succ := range scratch {
			if int(succ) >= len(fn.Blocks) {
				errs = append(errs, fmt.Errorf("block %d: successor %d does not exist", block.ID, succ))
			}
		}
		for j := range block.Ops {
			if err := validateOp(fn, block.ID, j, &block.Ops[j]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func validateOp(fn *Func, blockID BlockID, idx int, op *Op) error {
	at := func(format string, args ...any) error {
		return fmt.Errorf("block %d op %d: %s", blockID, idx, fmt.Sprintf(format, args...))
	}
	switch op.Kind {
	case OpBranch, OpReturn:
		return at("flat-list control op inside block body")
	case OpInvalid:
		return at("invalid operation kind")
	case OpDecl:
		if fn.Places.Binding(op.Decl.Binding) == nil {
			return at("unknown binding %d", op.Decl.Binding)
		}
	case OpRead:
		if !op.Read.Place.IsValid() {
			return at("read place is invalid")
		}
	case OpWrite:
		if !op.Write.Place.IsValid() {
			return at("write place is invalid")
		}
	case OpBorrow:
		if !op.Borrow.Place.IsValid() {
			return at("borrowed place is invalid")
		}
		if fn.Places.Binding(op.Borrow.Dest) == nil {
			return at("unknown borrow destination %d", op.Borrow.Dest)
		}
	case OpUseBorrow:
		if fn.Places.Binding(op.UseBorrow.Ref) == nil {
			return at("unknown borrow holder %d", op.UseBorrow.Ref)
		}
	case OpMove:
		if !op.Move.From.IsValid() {
			return at("move source is invalid")
		}
	case OpCall:
		for ai, arg := range op.Call.Args {
			if !arg.Place.IsValid() {
				return at("argument %d place is invalid", ai)
			}
		}
	case OpEndScope:
		if fn.Places.Scope(op.EndScope.Scope) == nil {
			return at("unknown scope %d", op.EndScope.Scope)
		}
	}
	return nil
}
