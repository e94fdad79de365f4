package cfg

import (
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// FuncID identifies a function within a module.
type FuncID uint32

// Func is one analyzed unit: its own place universe plus basic blocks.
type Func struct {
	ID   FuncID
	Name string
	Span source.Span

	Places    *place.Table
	RootScope place.ScopeID

	Blocks []Block
	Entry  BlockID

	preds [][]BlockID
	rpo   []BlockID
}

// Block returns the block with the given ID, or nil when out of range.
func (f *Func) Block(id BlockID) *Block {
	if f == nil || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// Preds returns the predecessor blocks of id.
func (f *Func) Preds(id BlockID) []BlockID {
	if f == nil || int(id) >= len(f.preds) {
		return nil
	}
	return f.preds[id]
}

// FlowOrder returns reachable blocks in reverse postorder from the entry.
// Unreachable blocks are excluded; passes that walk in flow order never see
// them.
func (f *Func) FlowOrder() []BlockID {
	if f == nil {
		return nil
	}
	return f.rpo
}

// Module groups the functions the front end exported for one analysis run.
type Module struct {
	Name    string
	Funcs   []*Func
	Strings *source.Interner
	Files   *source.FileSet
}
