package place

import (
	"fmt"

	"fortio.org/safecast"

	"borrowck/internal/source"
)

// BindingID identifies a named storage slot.
type BindingID uint32

// NoBindingID marks the absence of a binding.
const NoBindingID BindingID = 0

// IsValid reports whether the ID refers to a stored binding.
func (id BindingID) IsValid() bool { return id != NoBindingID }

// ScopeID identifies a lexical scope in the front end's scope tree.
type ScopeID uint32

// NoScopeID marks the absence of a scope.
const NoScopeID ScopeID = 0

// IsValid reports whether the ID refers to a stored scope.
func (id ScopeID) IsValid() bool { return id != NoScopeID }

// Binding is a named storage slot. Mutable is the declared reassignability
// flag, orthogonal to borrow kinds. ByMove records the copy-vs-move
// classification: a ByMove binding transfers its value on assignment and
// parameter passing, a copy binding duplicates it.
type Binding struct {
	ID      BindingID
	Name    source.StringID
	Mutable bool
	ByMove  bool
	// Param marks function parameters: their referents outlive the
	// function, so returning a borrow of a param place is not dangling.
	Param bool
	Scope ScopeID
	Span  source.Span
}

// Scope is one node of the front end's scope tree. A binding dies when its
// declaring scope ends, which unconditionally ends every region it owns.
type Scope struct {
	ID     ScopeID
	Parent ScopeID
}

// NewScope appends a scope under parent. Pass NoScopeID for the function's
// root scope.
func (t *Table) NewScope(parent ScopeID) ScopeID {
	value, err := safecast.Conv[uint32](len(t.scopes))
	if err != nil {
		panic(fmt.Errorf("scope table overflow: %w", err))
	}
	id := ScopeID(value)
	t.scopes = append(t.scopes, Scope{ID: id, Parent: parent})
	return id
}

// NewBinding declares a binding in scope and returns its ID.
func (t *Table) NewBinding(name source.StringID, mutable, byMove bool, scope ScopeID, span source.Span) BindingID {
	value, err := safecast.Conv[uint32](len(t.bindings))
	if err != nil {
		panic(fmt.Errorf("binding table overflow: %w", err))
	}
	id := BindingID(value)
	t.bindings = append(t.bindings, Binding{
		ID:      id,
		Name:    name,
		Mutable: mutable,
		ByMove:  byMove,
		Scope:   scope,
		Span:    span,
	})
	return id
}

// NewParam declares a function parameter binding in scope. Parameters are
// initialized at function entry.
func (t *Table) NewParam(name source.StringID, mutable, byMove bool, scope ScopeID, span source.Span) BindingID {
	id := t.NewBinding(name, mutable, byMove, scope, span)
	t.bindings[id].Param = true
	return id
}

// Binding returns the stored binding, or nil for an unknown ID.
func (t *Table) Binding(id BindingID) *Binding {
	if t == nil || !id.IsValid() || int(id) >= len(t.bindings) {
		return nil
	}
	return &t.bindings[id]
}

// ScopeOf returns the declaring scope of a binding.
func (t *Table) ScopeOf(id BindingID) ScopeID {
	b := t.Binding(id)
	if b == nil {
		return NoScopeID
	}
	return b.Scope
}

// Scope returns the stored scope, or nil for an unknown ID.
func (t *Table) Scope(id ScopeID) *Scope {
	if t == nil || !id.IsValid() || int(id) >= len(t.scopes) {
		return nil
	}
	return &t.scopes[id]
}

// ScopeContains reports whether outer is inner itself or one of its
// ancestors in the scope tree.
func (t *Table) ScopeContains(outer, inner ScopeID) bool {
	if !outer.IsValid() || !inner.IsValid() {
		return false
	}
	for cur := inner; cur.IsValid(); {
		if cur == outer {
			return true
		}
		s := t.Scope(cur)
		if s == nil {
			return false
		}
		cur = s.Parent
	}
	return false
}

// BindingCount counts stored bindings, the sentinel included.
func (t *Table) BindingCount() int {
	if t == nil {
		return 0
	}
	return len(t.bindings)
}

// BindingsIn returns the bindings declared directly in scope, in
// declaration order.
func (t *Table) BindingsIn(scope ScopeID) []BindingID {
	if t == nil || !scope.IsValid() {
		return nil
	}
	var out []BindingID
	for _, b := range t.Bindings() {
		if b.Scope == scope {
			out = append(out, b.ID)
		}
	}
	return out
}

// Bindings returns stored bindings in declaration order (sentinel excluded).
func (t *Table) Bindings() []Binding {
	if t == nil || len(t.bindings) <= 1 {
		return nil
	}
	return t.bindings[1:]
}
