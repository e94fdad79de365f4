package cfg

import (
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// BorrowKind differentiates shared vs exclusive borrows.
type BorrowKind uint8

const (
	BorrowShared BorrowKind = iota
	BorrowExclusive
)

func (k BorrowKind) String() string {
	if k == BorrowExclusive {
		return "exclusive"
	}
	return "shared"
}

// OpKind enumerates the closed set of operation kinds the front end lowers
// to. Every pass matches this set exhaustively.
type OpKind uint8

const (
	OpInvalid OpKind = iota
	// OpDecl brings a binding into scope, optionally initialized.
	OpDecl
	// OpRead reads the current value of a place.
	OpRead
	// OpWrite fully overwrites a place.
	OpWrite
	// OpBorrow creates a borrow of a place and stores it in a binding.
	OpBorrow
	// OpUseBorrow accesses the referent through a previously created borrow.
	OpUseBorrow
	// OpMove transfers the value out of a place.
	OpMove
	// OpCall invokes a callee, optionally with a two-phase receiver.
	OpCall
	// OpEndScope ends a lexical scope, destroying its bindings.
	OpEndScope
	// OpBranch and OpReturn appear only in the front end's flat operation
	// list; the builder lowers them into block terminators.
	OpBranch
	OpReturn
)

// Op is one typed operation over places. Exactly the substruct named by Kind
// is meaningful.
type Op struct {
	Kind OpKind
	Span source.Span

	Decl      DeclOp
	Read      ReadOp
	Write     WriteOp
	Borrow    BorrowOp
	UseBorrow UseBorrowOp
	Move      MoveOp
	Call      CallOp
	EndScope  EndScopeOp
	Branch    BranchOp
	Return    ReturnOp
}

// DeclOp brings Binding into scope. Init marks declarations with an
// initializer; without one the binding stays unusable until first write.
type DeclOp struct {
	Binding place.BindingID
	Init    bool
}

// ReadOp reads a place by value.
type ReadOp struct {
	Place place.PlaceID
}

// WriteOp fully overwrites a place, (re)initializing it.
type WriteOp struct {
	Place place.PlaceID
}

// BorrowOp creates a borrow of Place and binds it to Dest.
type BorrowOp struct {
	Dest  place.BindingID
	Kind  BorrowKind
	Place place.PlaceID
}

// UseBorrowOp reads (or, when Write is set, writes) the referent through the
// borrow currently held by Ref.
type UseBorrowOp struct {
	Ref   place.BindingID
	Write bool
}

// MoveOp transfers the value out of From. Dest optionally names the binding
// receiving the value; moves consumed by calls leave it unset.
type MoveOp struct {
	From place.PlaceID
	Dest place.BindingID
}

// ArgMode classifies how a call argument accesses its place.
type ArgMode uint8

const (
	// ArgRead evaluates the argument with shared access that is fully
	// consumed before the call begins.
	ArgRead ArgMode = iota
	// ArgMove transfers the argument's value into the call.
	ArgMove
	// ArgBorrowExclusive takes exclusive access during argument evaluation.
	ArgBorrowExclusive
)

// CallArg is one evaluated argument of a call.
type CallArg struct {
	Place place.PlaceID
	Mode  ArgMode
}

// CallOp invokes Callee. When Recv is set the call is receiver-shaped: the
// receiver is borrowed exclusively for the duration of the call, reserved
// while the arguments are evaluated and activated only afterwards.
type CallOp struct {
	Callee source.StringID
	Recv   place.PlaceID
	Args   []CallArg
	Dest   place.BindingID
}

// EndScopeOp ends Scope. Bindings declared in it die here, and with them
// every region they own.
type EndScopeOp struct {
	Scope place.ScopeID
}

// BranchOp is a flat-list control transfer. Targets are indices into the
// front end's operation list. An invalid Cond makes the branch
// unconditional to Then.
type BranchOp struct {
	Cond place.PlaceID
	Then int
	Else int
}

// ReturnOp leaves the function, optionally reading Value out of it.
type ReturnOp struct {
	HasValue bool
	Value    place.PlaceID
}
