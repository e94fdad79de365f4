// Package module reads and writes the analyzer's interchange format: a
// msgpack-encoded description of functions as flat operation lists over
// places, produced by a front end and rebuilt here into control-flow graphs.
package module

// Schema is the current interchange schema. Bump on incompatible layout
// changes; decoders reject anything newer.
const Schema uint16 = 1

// FileExtension is the conventional suffix for interchange files.
const FileExtension = ".bmod"

// None marks an absent index field. Zero is a valid index in every table,
// so absence must be explicit.
const None int = -1

// FileModule is the top-level interchange document.
type FileModule struct {
	Schema uint16       `msgpack:"schema"`
	Name   string       `msgpack:"name"`
	Files  []FileSource `msgpack:"files,omitempty"`
	Funcs  []FileFunc   `msgpack:"funcs"`
}

// FileSource carries the text of one source file so diagnostics can be
// rendered with line context. Text may be empty when the producer chose not
// to embed it.
type FileSource struct {
	Path string `msgpack:"path"`
	Text string `msgpack:"text,omitempty"`
}

// FileFunc is one function: scope tree, bindings, and a flat operation list.
// Control flow is expressed with branch/return operations whose targets are
// operation indices; the CFG builder lowers them into blocks.
type FileFunc struct {
	Name     string        `msgpack:"name"`
	File     int           `msgpack:"file"`
	Span     FileSpan      `msgpack:"span"`
	Scopes   []FileScope   `msgpack:"scopes"`
	Bindings []FileBinding `msgpack:"bindings"`
	Ops      []FileOp      `msgpack:"ops"`
}

// FileSpan is a byte range in the function's file.
type FileSpan struct {
	Start uint32 `msgpack:"start"`
	End   uint32 `msgpack:"end"`
}

// FileScope is a node of the scope tree. Scope 0 is the function's root and
// must have Parent == None; every other scope's parent precedes it.
type FileScope struct {
	Parent int `msgpack:"parent"`
}

// FileBinding declares one named slot, referenced by index.
type FileBinding struct {
	Name    string   `msgpack:"name"`
	Mutable bool     `msgpack:"mutable"`
	ByMove  bool     `msgpack:"by_move"`
	Param   bool     `msgpack:"param"`
	Scope   int      `msgpack:"scope"`
	Span    FileSpan `msgpack:"span"`
}

// Projection kinds in the wire format.
const (
	ProjField = "field"
	ProjIndex = "index"
	ProjDeref = "deref"
)

// FilePlace names a memory location: a binding plus a projection path.
type FilePlace struct {
	Base  int              `msgpack:"base"`
	Projs []FileProjection `msgpack:"projs,omitempty"`
}

// FileProjection is one projection step.
type FileProjection struct {
	Kind  string `msgpack:"kind"`
	Field string `msgpack:"field,omitempty"`
}

// Operation kinds in the wire format.
const (
	OpDecl      = "decl"
	OpRead      = "read"
	OpWrite     = "write"
	OpBorrow    = "borrow"
	OpUseBorrow = "useborrow"
	OpMove      = "move"
	OpCall      = "call"
	OpEndScope  = "endscope"
	OpBranch    = "branch"
	OpReturn    = "return"
)

// Argument passing modes for call operations.
const (
	ArgRead       = "read"
	ArgMove       = "move"
	ArgBorrowExcl = "borrow_exclusive"
)

// FileOp is one flat-list operation. Only the fields relevant to Kind are
// consulted; index fields use None for absence.
type FileOp struct {
	Kind string   `msgpack:"kind"`
	Span FileSpan `msgpack:"span"`

	// decl
	Binding int  `msgpack:"binding"`
	Init    bool `msgpack:"init,omitempty"`

	// read, write, borrow referent, move source, branch condition,
	// return value
	Place *FilePlace `msgpack:"place,omitempty"`

	// borrow, move destination
	Dest      int  `msgpack:"dest"`
	Exclusive bool `msgpack:"exclusive,omitempty"`

	// useborrow
	Ref   int  `msgpack:"ref"`
	Write bool `msgpack:"write,omitempty"`

	// call
	Callee string     `msgpack:"callee,omitempty"`
	Recv   *FilePlace `msgpack:"recv,omitempty"`
	Args   []FileArg  `msgpack:"args,omitempty"`

	// endscope
	Scope int `msgpack:"scope"`

	// branch
	Then int `msgpack:"then"`
	Else int `msgpack:"else"`

	// return
	HasValue bool `msgpack:"has_value,omitempty"`
}

// FileArg is one call argument.
type FileArg struct {
	Place FilePlace `msgpack:"place"`
	Mode  string    `msgpack:"mode"`
}
