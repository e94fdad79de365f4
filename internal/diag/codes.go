package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Input shape problems reported while decoding or building the CFG.
	CfgInfo          Code = 1000
	CfgInvalidOp     Code = 1001
	CfgBadBranch     Code = 1002
	CfgUnknownPlace  Code = 1003
	CfgUnterminated  Code = 1004
	CfgUnknownScope  Code = 1005
	CfgModuleDecode  Code = 1006
	CfgDuplicateFunc Code = 1007

	// Borrow checking proper.
	BckInfo                 Code = 2000
	BckAliasingConflict     Code = 2001
	BckUseOfMovedValue      Code = 2002
	BckUseOfUninitialized   Code = 2003
	BckDanglingReference    Code = 2004
	BckBorrowOutlivesOwner  Code = 2005
	BckExclusiveOfImmutable Code = 2006
	BckWriteThroughShared   Code = 2007

	// Observability.
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode: "Unknown error",

	CfgInfo:          "Control-flow graph information",
	CfgInvalidOp:     "Invalid operation in input",
	CfgBadBranch:     "Branch target out of range",
	CfgUnknownPlace:  "Operation references an unknown place",
	CfgUnterminated:  "Basic block is not terminated",
	CfgUnknownScope:  "Operation references an unknown scope",
	CfgModuleDecode:  "Module file cannot be decoded",
	CfgDuplicateFunc: "Duplicate function name in module",

	BckInfo:                 "Borrow checker information",
	BckAliasingConflict:     "Conflicting borrows of overlapping places",
	BckUseOfMovedValue:      "Use of moved value",
	BckUseOfUninitialized:   "Use of uninitialized binding",
	BckDanglingReference:    "Reference outlives its referent",
	BckBorrowOutlivesOwner:  "Borrow still active when its owner's scope ends",
	BckExclusiveOfImmutable: "Exclusive borrow of an immutable binding",
	BckWriteThroughShared:   "Write through a shared borrow",

	ObsInfo:    "Observability information",
	ObsTimings: "Analysis timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("CFG%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("BCK%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
