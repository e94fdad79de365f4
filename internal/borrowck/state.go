package borrowck

import (
	"slices"

	"borrowck/internal/place"
	"borrowck/internal/source"
)

// bindingStatus tracks the move/initialization lifecycle of one binding.
// Bindings absent from the state map are not (yet) declared on this path.
type bindingStatus uint8

const (
	statusUninit bindingStatus = iota + 1
	statusInit
	statusDead // declaring scope has ended
)

// valueState is the per-program-point flow state the checker threads through
// a block: binding statuses, moved places, which borrow each ref binding
// currently holds, and the active borrow set snapshot.
type valueState struct {
	status map[place.BindingID]bindingStatus
	moved  map[place.PlaceID]source.Span
	holder map[place.BindingID]BorrowID
	active []BorrowID
}

func newValueState() *valueState {
	return &valueState{
		status: make(map[place.BindingID]bindingStatus),
		moved:  make(map[place.PlaceID]source.Span),
		holder: make(map[place.BindingID]BorrowID),
	}
}

func (s *valueState) clone() *valueState {
	out := &valueState{
		status: make(map[place.BindingID]bindingStatus, len(s.status)),
		moved:  make(map[place.PlaceID]source.Span, len(s.moved)),
		holder: make(map[place.BindingID]BorrowID, len(s.holder)),
		active: slices.Clone(s.active),
	}
	for k, v := range s.status {
		out.status[k] = v
	}
	for k, v := range s.moved {
		out.moved[k] = v
	}
	for k, v := range s.holder {
		out.holder[k] = v
	}
	return out
}

// join merges another predecessor's exit state into s, conservatively:
//
//   - a binding is initialized only when initialized on every joined path;
//   - moved places union (moved on any path means moved at the join);
//   - dead status wins over everything;
//   - on holder disagreement the earlier-joined predecessor wins, which is
//     deterministic because predecessors join in block order.
func (s *valueState) join(other *valueState) {
	if other == nil {
		return
	}
	for b, st := range other.status {
		cur, ok := s.status[b]
		if !ok {
			s.status[b] = st
			continue
		}
		if st == statusDead || cur == statusDead {
			s.status[b] = statusDead
		} else if st == statusUninit || cur == statusUninit {
			s.status[b] = statusUninit
		}
	}
	for pl, span := range other.moved {
		if _, ok := s.moved[pl]; !ok {
			s.moved[pl] = span
		}
	}
	for b, id := range other.holder {
		if _, ok := s.holder[b]; !ok {
			s.holder[b] = id
		}
	}
	merged := append(slices.Clone(s.active), other.active...)
	slices.Sort(merged)
	s.active = slices.Compact(merged)
}

// movedPlaces returns the moved set in ascending place order so every
// iteration over it is deterministic.
func (s *valueState) movedPlaces() []place.PlaceID {
	if len(s.moved) == 0 {
		return nil
	}
	out := make([]place.PlaceID, 0, len(s.moved))
	for pl := range s.moved {
		out = append(out, pl)
	}
	slices.Sort(out)
	return out
}

// clearMovedUnder drops every moved marker at or below pl: a write to pl
// reinitializes everything it covers.
func (s *valueState) clearMovedUnder(places *place.Table, pl place.PlaceID) {
	for _, moved := range s.movedPlaces() {
		if places.IsPrefixOf(pl, moved) {
			delete(s.moved, moved)
		}
	}
}
