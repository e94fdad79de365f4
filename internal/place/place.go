package place

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"borrowck/internal/source"
)

// PlaceID identifies a canonical place within a Table.
type PlaceID uint32

// NoPlaceID marks the absence of a place.
const NoPlaceID PlaceID = 0

// IsValid reports whether the ID refers to a stored place.
func (id PlaceID) IsValid() bool { return id != NoPlaceID }

// ProjectionKind enumerates the ways a place is narrowed from its base.
type ProjectionKind uint8

const (
	ProjectionInvalid ProjectionKind = iota
	ProjectionField
	ProjectionIndex
	ProjectionDeref
)

// Projection narrows a base place by one step. Field projections carry the
// interned field name; index projections are deliberately value-free, so any
// two indices into the same base alias each other.
type Projection struct {
	Kind  ProjectionKind
	Field source.StringID
}

type placeData struct {
	Base   BindingID // root binding, set for every place
	Parent PlaceID   // NoPlaceID for the root place of a binding
	Proj   Projection
	Depth  uint32 // number of projections from the root
}

type placeKey struct {
	parent PlaceID
	proj   Projection
}

// Table is the arena of canonical places: equal projection paths resolve to
// the same PlaceID, so places compare by ID everywhere downstream.
type Table struct {
	places []placeData
	roots  map[BindingID]PlaceID
	index  map[placeKey]PlaceID

	bindings []Binding
	scopes   []Scope
}

// NewTable builds an empty place table. Index 0 of every arena is a sentinel.
func NewTable() *Table {
	return &Table{
		places:   []placeData{{}},
		roots:    make(map[BindingID]PlaceID),
		index:    make(map[placeKey]PlaceID),
		bindings: []Binding{{}},
		scopes:   []Scope{{}},
	}
}

// Root resolves the whole-binding place for base, creating it on first use.
func (t *Table) Root(base BindingID) PlaceID {
	if t == nil || !base.IsValid() {
		return NoPlaceID
	}
	if id, ok := t.roots[base]; ok {
		return id
	}
	id := t.newPlace(placeData{Base: base})
	t.roots[base] = id
	return id
}

// Project narrows parent by one projection step, canonicalizing the result.
func (t *Table) Project(parent PlaceID, proj Projection) PlaceID {
	if t == nil || !parent.IsValid() || proj.Kind == ProjectionInvalid {
		return NoPlaceID
	}
	key := placeKey{parent: parent, proj: proj}
	if id, ok := t.index[key]; ok {
		return id
	}
	parentData := t.place(parent)
	if parentData == nil {
		return NoPlaceID
	}
	id := t.newPlace(placeData{
		Base:   parentData.Base,
		Parent: parent,
		Proj:   proj,
		Depth:  parentData.Depth + 1,
	})
	t.index[key] = id
	return id
}

// Resolve canonicalizes a full projection path rooted at base. This is the
// front end's entry point for turning its expressions into places.
func (t *Table) Resolve(base BindingID, projs []Projection) PlaceID {
	id := t.Root(base)
	for _, proj := range projs {
		id = t.Project(id, proj)
		if !id.IsValid() {
			return NoPlaceID
		}
	}
	return id
}

// Base returns the root binding a place belongs to.
func (t *Table) Base(id PlaceID) BindingID {
	data := t.place(id)
	if data == nil {
		return NoBindingID
	}
	return data.Base
}

// Parent returns the place one projection step up, or NoPlaceID for roots.
func (t *Table) Parent(id PlaceID) PlaceID {
	data := t.place(id)
	if data == nil {
		return NoPlaceID
	}
	return data.Parent
}

// IsPrefixOf reports whether prefix is id itself or a projection ancestor of
// it: a borrow of the prefix reaches everything below it.
func (t *Table) IsPrefixOf(prefix, id PlaceID) bool {
	if t == nil || !prefix.IsValid() || !id.IsValid() {
		return false
	}
	for cur := id; cur.IsValid(); cur = t.Parent(cur) {
		if cur == prefix {
			return true
		}
	}
	return false
}

// Overlaps reports whether two places can name the same memory: one must be
// a prefix of the other. Disjoint sibling projections do not overlap.
func (t *Table) Overlaps(a, b PlaceID) bool {
	return t.IsPrefixOf(a, b) || t.IsPrefixOf(b, a)
}

// Label renders the place for diagnostics, e.g. "p.field[_]" or "*r".
func (t *Table) Label(id PlaceID, strings *source.Interner) string {
	data := t.place(id)
	if data == nil {
		return "<invalid>"
	}
	if !data.Parent.IsValid() {
		return t.bindingName(data.Base, strings)
	}
	base := t.Label(data.Parent, strings)
	switch data.Proj.Kind {
	case ProjectionField:
		name := ""
		if strings != nil {
			name, _ = strings.Lookup(data.Proj.Field)
		}
		if name == "" {
			name = "_"
		}
		return base + "." + name
	case ProjectionIndex:
		return base + "[_]"
	case ProjectionDeref:
		return "*" + base
	}
	return base
}

// Projections reconstructs the projection path from the root place to id.
func (t *Table) Projections(id PlaceID) []Projection {
	data := t.place(id)
	if data == nil || !data.Parent.IsValid() {
		return nil
	}
	out := make([]Projection, 0, data.Depth)
	for cur := id; ; {
		cd := t.place(cur)
		if cd == nil || !cd.Parent.IsValid() {
			break
		}
		out = append(out, cd.Proj)
		cur = cd.Parent
	}
	// Collected leaf-first, reverse into root-first order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// PlaceCount counts stored places, the sentinel included.
func (t *Table) PlaceCount() int {
	if t == nil {
		return 0
	}
	return len(t.places)
}

func (t *Table) place(id PlaceID) *placeData {
	if t == nil || !id.IsValid() || int(id) >= len(t.places) {
		return nil
	}
	return &t.places[id]
}

func (t *Table) newPlace(data placeData) PlaceID {
	value, err := safecast.Conv[uint32](len(t.places))
	if err != nil {
		panic(fmt.Errorf("place table overflow: %w", err))
	}
	t.places = append(t.places, data)
	return PlaceID(value)
}

func (t *Table) bindingName(id BindingID, interner *source.Interner) string {
	b := t.Binding(id)
	if b == nil {
		return "<invalid>"
	}
	if interner != nil {
		if name, ok := interner.Lookup(b.Name); ok && name != "" {
			return name
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "_%d", id)
	return sb.String()
}
