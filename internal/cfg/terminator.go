package cfg

import (
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// TermKind enumerates block terminators.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermGoto
	TermIf
	TermReturn
)

// Terminator ends a basic block. Exactly the substruct named by Kind is
// meaningful.
type Terminator struct {
	Kind TermKind
	Span source.Span

	Goto   GotoTerm
	If     IfTerm
	Return ReturnTerm
}

type GotoTerm struct {
	Target BlockID
}

type IfTerm struct {
	Cond place.PlaceID
	Then BlockID
	Else BlockID
}

type ReturnTerm struct {
	HasValue bool
	Value    place.PlaceID
}

// Successors appends the terminator's target blocks to dst and returns it.
func (t Terminator) Successors(dst []BlockID) []BlockID {
	switch t.Kind {
	case TermGoto:
		dst = append(dst, t.Goto.Target)
	case TermIf:
		dst = append(dst, t.If.Then)
		if t.If.Else != t.If.Then {
			dst = append(dst, t.If.Else)
		}
	case TermReturn, TermNone:
	}
	return dst
}
