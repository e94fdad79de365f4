package borrowck

import (
	"borrowck/internal/cfg"
	"borrowck/internal/place"
)

// checkCall enforces two-phase borrow semantics for method-style calls.
//
// A call with a receiver takes an exclusive borrow of it in two phases: the
// borrow is merely reserved while the arguments are evaluated, so argument
// reads of the receiver (including through pre-existing shared borrows that
// die during evaluation) are fine. The reservation activates once the
// arguments are done; any shared borrow of the receiver still live at that
// point, and any exclusive access attempted during the reserved window,
// conflicts.
func (c *checker) checkCall(op *cfg.Op, point cfg.ProgramPoint) {
	call := &op.Call
	span := op.Span

	recv := NoBorrowID
	if call.Recv.IsValid() {
		if c.checkUsable(call.Recv, span) && c.ensureMutablePlace(call.Recv, span) {
			id, issue := c.borrows.Begin(cfg.BorrowExclusive, PhaseReserved, call.Recv, place.NoBindingID, span, point)
			if issue.Kind != IssueNone {
				c.reportConflict(span, issue, "cannot borrow '%s' as exclusive for the call receiver", c.placeLabel(call.Recv))
			} else {
				recv = id
			}
		}
	}

	for i := range call.Args {
		arg := &call.Args[i]
		if !arg.Place.IsValid() {
			continue
		}
		switch arg.Mode {
		case cfg.ArgRead:
			c.readValue(arg.Place, span)
		case cfg.ArgMove:
			c.moveOut(arg.Place, place.NoBindingID, span)
		case cfg.ArgBorrowExclusive:
			c.exclusiveArg(arg.Place, op, point)
		}
	}

	// Borrows whose holder had its last live use in the arguments die before
	// the reservation activates.
	c.expireAfterOp(point.Block, int(point.Index))

	if recv.IsValid() {
		if issue := c.borrows.Activate(recv); issue.Kind != IssueNone {
			c.reportConflict(span, issue, "cannot activate exclusive borrow of receiver '%s'", c.placeLabel(call.Recv))
		}
	}

	if call.Dest.IsValid() {
		if old, ok := c.state.holder[call.Dest]; ok {
			c.endBorrow(old)
		}
		c.state.status[call.Dest] = statusInit
	}

	// The receiver borrow lasts exactly for the call.
	if recv.IsValid() {
		c.borrows.End(recv)
	}
}

// exclusiveArg models an exclusive borrow created and consumed during
// argument evaluation. Unlike plain reads it conflicts with a reserved
// receiver borrow of an overlapping place.
func (c *checker) exclusiveArg(pl place.PlaceID, op *cfg.Op, point cfg.ProgramPoint) {
	span := op.Span
	if !c.checkUsable(pl, span) || !c.ensureMutablePlace(pl, span) {
		return
	}
	id, issue := c.borrows.Begin(cfg.BorrowExclusive, PhaseActive, pl, place.NoBindingID, span, point)
	if issue.Kind != IssueNone {
		c.reportConflict(span, issue, "cannot borrow '%s' as exclusive for this argument", c.placeLabel(pl))
		return
	}
	c.borrows.End(id)
}
