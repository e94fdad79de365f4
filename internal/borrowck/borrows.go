// Package borrowck walks a function's control-flow graph in flow order and
// enforces the exclusivity, move, initialization, and lifetime rules over
// its places. Violations are emitted as structured diagnostics; the walk
// never repairs or reinterprets a conflicting construct.
package borrowck

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"borrowck/internal/cfg"
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// BorrowID identifies a borrow created during the walk.
type BorrowID uint32

// NoBorrowID marks the absence of a borrow.
const NoBorrowID BorrowID = 0

// IsValid reports whether the ID refers to an actual borrow.
func (id BorrowID) IsValid() bool { return id != NoBorrowID }

// Phase orders the two sub-phases of a two-phase receiver borrow. Plain
// borrows are created PhaseActive.
type Phase uint8

const (
	// PhaseActive counts fully for conflict purposes.
	PhaseActive Phase = iota
	// PhaseReserved covers a receiver during argument evaluation: shared
	// reads of the receiver do not conflict with it yet, exclusive access
	// still does.
	PhaseReserved
)

// BorrowInfo stores metadata about each borrow.
type BorrowInfo struct {
	ID     BorrowID
	Kind   cfg.BorrowKind
	Phase  Phase
	Place  place.PlaceID
	Holder place.BindingID // NoBindingID for transient call borrows
	Span   source.Span
	At     cfg.ProgramPoint
}

// IssueKind enumerates reasons a borrow-related action fails.
type IssueKind uint8

const (
	IssueNone IssueKind = iota
	// IssueConflict reports an exclusivity violation against an existing
	// active borrow.
	IssueConflict
)

// Issue carries the conflicting borrow when an action is rejected.
type Issue struct {
	Kind   IssueKind
	Borrow BorrowID
}

// Table tracks every borrow created during one function walk plus the set
// currently active. The active set is kept in ascending ID order so all
// queries are deterministic.
type Table struct {
	places *place.Table
	infos  []BorrowInfo
	active []BorrowID
}

// NewTable builds an empty borrow table over the function's places.
func NewTable(places *place.Table) *Table {
	return &Table{
		places: places,
		infos:  []BorrowInfo{{}},
	}
}

// Begin registers a borrow of kind/phase for pl and inserts it into the
// active set, after checking it against every overlapping active borrow.
// On conflict nothing is inserted and the offending borrow is returned.
func (bt *Table) Begin(kind cfg.BorrowKind, phase Phase, pl place.PlaceID, holder place.BindingID, span source.Span, at cfg.ProgramPoint) (BorrowID, Issue) {
	if bt == nil || !pl.IsValid() {
		return NoBorrowID, Issue{}
	}
	if issue := bt.checkAccess(pl, kind, phase); issue.Kind != IssueNone {
		return NoBorrowID, issue
	}
	value, err := safecast.Conv[uint32](len(bt.infos))
	if err != nil {
		panic(fmt.Errorf("borrow table overflow: %w", err))
	}
	id := BorrowID(value)
	bt.infos = append(bt.infos, BorrowInfo{
		ID:     id,
		Kind:   kind,
		Phase:  phase,
		Place:  pl,
		Holder: holder,
		Span:   span,
		At:     at,
	})
	bt.active = append(bt.active, id)
	return id, Issue{}
}

// checkAccess decides whether a new access of the given kind/phase to pl is
// compatible with the active set.
func (bt *Table) checkAccess(pl place.PlaceID, kind cfg.BorrowKind, phase Phase) Issue {
	for _, id := range bt.active {
		info := &bt.infos[id]
		if !bt.places.Overlaps(info.Place, pl) {
			continue
		}
		switch {
		case kind == cfg.BorrowShared && info.Kind == cfg.BorrowShared:
			// Shared borrows of overlapping places coexist.
		case kind == cfg.BorrowShared && info.Phase == PhaseReserved:
			// A reserved receiver tolerates shared reads until activation.
		case kind == cfg.BorrowExclusive && phase == PhaseReserved && info.Kind == cfg.BorrowShared:
			// Reservation itself tolerates existing shared borrows; the
			// conflict, if any, surfaces at activation.
		default:
			return Issue{Kind: IssueConflict, Borrow: id}
		}
	}
	return Issue{}
}

// ReadAllowed verifies a by-value read of pl against the active set. Reads
// conflict only with activated exclusive borrows.
func (bt *Table) ReadAllowed(pl place.PlaceID) Issue {
	if bt == nil || !pl.IsValid() {
		return Issue{}
	}
	for _, id := range bt.active {
		info := &bt.infos[id]
		if info.Kind != cfg.BorrowExclusive || info.Phase != PhaseActive {
			continue
		}
		if bt.places.Overlaps(info.Place, pl) {
			return Issue{Kind: IssueConflict, Borrow: id}
		}
	}
	return Issue{}
}

// MutationAllowed verifies a direct write to pl against the active set. Any
// overlapping active borrow freezes the place, reserved receivers included.
func (bt *Table) MutationAllowed(pl place.PlaceID) Issue {
	return bt.exclusiveAccessAllowed(pl)
}

// MoveAllowed verifies moving the value out of pl against the active set.
func (bt *Table) MoveAllowed(pl place.PlaceID) Issue {
	return bt.exclusiveAccessAllowed(pl)
}

func (bt *Table) exclusiveAccessAllowed(pl place.PlaceID) Issue {
	if bt == nil || !pl.IsValid() {
		return Issue{}
	}
	for _, id := range bt.active {
		info := &bt.infos[id]
		if bt.places.Overlaps(info.Place, pl) {
			return Issue{Kind: IssueConflict, Borrow: id}
		}
	}
	return Issue{}
}

// Activate flips a reserved borrow into its activated phase, re-checking it
// against the remaining active set.
func (bt *Table) Activate(id BorrowID) Issue {
	info := bt.Info(id)
	if info == nil || info.Phase != PhaseReserved {
		return Issue{}
	}
	for _, other := range bt.active {
		if other == id {
			continue
		}
		otherInfo := &bt.infos[other]
		if bt.places.Overlaps(otherInfo.Place, info.Place) {
			return Issue{Kind: IssueConflict, Borrow: other}
		}
	}
	info.Phase = PhaseActive
	return Issue{}
}

// End removes a borrow from the active set. Ending an already-ended borrow
// is a no-op.
func (bt *Table) End(id BorrowID) {
	if bt == nil {
		return
	}
	if i := slices.Index(bt.active, id); i >= 0 {
		bt.active = slices.Delete(bt.active, i, i+1)
	}
}

// Active returns the active set in creation order. Callers must not modify
// the returned slice.
func (bt *Table) Active() []BorrowID {
	if bt == nil {
		return nil
	}
	return bt.active
}

// SetActive replaces the active set, normalizing order. Used when joining
// predecessor states at a block entry.
func (bt *Table) SetActive(ids []BorrowID) {
	if bt == nil {
		return
	}
	bt.active = slices.Clone(ids)
	slices.Sort(bt.active)
	bt.active = slices.Compact(bt.active)
}

// Info returns metadata for the borrow.
func (bt *Table) Info(id BorrowID) *BorrowInfo {
	if bt == nil || id == NoBorrowID || int(id) >= len(bt.infos) {
		return nil
	}
	return &bt.infos[id]
}

// Infos returns a copy of all borrow records (sentinel excluded).
func (bt *Table) Infos() []BorrowInfo {
	if bt == nil || len(bt.infos) <= 1 {
		return nil
	}
	out := make([]BorrowInfo, len(bt.infos)-1)
	copy(out, bt.infos[1:])
	return out
}
