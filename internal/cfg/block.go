package cfg

// BlockID indexes a basic block within a function. The entry block is
// always block 0.
type BlockID uint32

// Block is a linear run of operations ended by exactly one terminator.
type Block struct {
	ID          BlockID
	Ops         []Op
	Term        Terminator
	Unreachable bool
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// ProgramPoint is an ordered position within a basic block: the state before
// executing Ops[Index]. Points compare totally within a block and only via
// CFG reachability across blocks.
type ProgramPoint struct {
	Block BlockID
	Index uint32
}

// Before reports whether p precedes q within the same block. Points in
// different blocks are unordered here.
func (p ProgramPoint) Before(q ProgramPoint) bool {
	return p.Block == q.Block && p.Index < q.Index
}
