package module

import (
	"fmt"
	"io"
	"os"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"borrowck/internal/cfg"
	"borrowck/internal/diag"
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// DecodeFile reads an interchange file from disk. See Decode.
func DecodeFile(path string, reporter diag.Reporter) (*cfg.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, reporter)
}

// Decode reads a msgpack interchange document and rebuilds it into a
// control-flow module. Transport and schema failures return an error;
// structural problems inside individual functions are reported through
// reporter, and the offending function is dropped so the rest of the module
// still analyzes.
func Decode(r io.Reader, reporter diag.Reporter) (*cfg.Module, error) {
	var fm FileModule
	if err := msgpack.NewDecoder(r).Decode(&fm); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if fm.Schema > Schema {
		return nil, fmt.Errorf("decode module: schema %d is newer than supported %d", fm.Schema, Schema)
	}

	m := &cfg.Module{
		Name:    fm.Name,
		Strings: source.NewInterner(),
		Files:   source.NewFileSet(),
	}
	fileIDs := make([]source.FileID, len(fm.Files))
	for i, f := range fm.Files {
		fileIDs[i] = m.Files.AddVirtual(f.Path, []byte(f.Text))
	}

	seen := make(map[string]struct{}, len(fm.Funcs))
	for i := range fm.Funcs {
		ff := &fm.Funcs[i]
		if _, dup := seen[ff.Name]; dup {
			diag.ReportError(reporter, diag.CfgDuplicateFunc, source.Span{},
				fmt.Sprintf("duplicate function %q in module %q", ff.Name, fm.Name)).Emit()
			continue
		}
		seen[ff.Name] = struct{}{}

		id, err := safecast.Conv[uint32](i + 1)
		if err != nil {
			return nil, fmt.Errorf("decode module: %w", err)
		}
		fn, ok := decodeFunc(cfg.FuncID(id), ff, fileIDs, m.Strings, reporter)
		if ok {
			m.Funcs = append(m.Funcs, fn)
		}
	}
	return m, nil
}

type funcDecoder struct {
	ff       *FileFunc
	file     source.FileID
	strings  *source.Interner
	reporter diag.Reporter

	places   *place.Table
	scopes   []place.ScopeID
	bindings []place.BindingID
	ok       bool
}

func decodeFunc(id cfg.FuncID, ff *FileFunc, fileIDs []source.FileID, strings *source.Interner, reporter diag.Reporter) (*cfg.Func, bool) {
	d := &funcDecoder{ff: ff, strings: strings, reporter: reporter, ok: true}
	if ff.File >= 0 && ff.File < len(fileIDs) {
		d.file = fileIDs[ff.File]
	}
	d.places = place.NewTable()
	d.decodeScopes()
	d.decodeBindings()
	if !d.ok {
		return nil, false
	}

	ops := make([]cfg.Op, 0, len(ff.Ops))
	for i := range ff.Ops {
		op, ok := d.decodeOp(i, &ff.Ops[i])
		if !ok {
			return nil, false
		}
		ops = append(ops, op)
	}
	if len(d.scopes) == 0 {
		d.fail(diag.CfgUnknownScope, ff.Span, "function %q has no root scope", ff.Name)
		return nil, false
	}

	fn, err := cfg.Build(id, ff.Name, d.span(ff.Span), d.places, d.scopes[0], ops)
	if err != nil {
		d.fail(diag.CfgBadBranch, ff.Span, "function %q: %v", ff.Name, err)
		return nil, false
	}
	if err := cfg.Validate(fn); err != nil {
		d.fail(diag.CfgInvalidOp, ff.Span, "function %q: %v", ff.Name, err)
		return nil, false
	}
	return fn, true
}

func (d *funcDecoder) fail(code diag.Code, sp FileSpan, format string, args ...any) {
	diag.ReportError(d.reporter, code, d.span(sp), fmt.Sprintf(format, args...)).Emit()
	d.ok = false
}

func (d *funcDecoder) span(sp FileSpan) source.Span {
	return source.Span{File: d.file, Start: sp.Start, End: sp.End}
}

func (d *funcDecoder) decodeScopes() {
	d.scopes = make([]place.ScopeID, len(d.ff.Scopes))
	for i, fs := range d.ff.Scopes {
		parent := place.NoScopeID
		if fs.Parent != None {
			if fs.Parent < 0 || fs.Parent >= i {
				d.fail(diag.CfgUnknownScope, d.ff.Span,
					"function %q: scope %d has forward parent %d", d.ff.Name, i, fs.Parent)
				return
			}
			parent = d.scopes[fs.Parent]
		} else if i != 0 {
			d.fail(diag.CfgUnknownScope, d.ff.Span,
				"function %q: scope %d is a second root", d.ff.Name, i)
			return
		}
		d.scopes[i] = d.places.NewScope(parent)
	}
}

func (d *funcDecoder) decodeBindings() {
	d.bindings = make([]place.BindingID, len(d.ff.Bindings))
	for i, fb := range d.ff.Bindings {
		if fb.Scope < 0 || fb.Scope >= len(d.scopes) {
			d.fail(diag.CfgUnknownScope, fb.Span,
				"function %q: binding %q references unknown scope %d", d.ff.Name, fb.Name, fb.Scope)
			return
		}
		name := d.strings.Intern(fb.Name)
		scope := d.scopes[fb.Scope]
		if fb.Param {
			d.bindings[i] = d.places.NewParam(name, fb.Mutable, fb.ByMove, scope, d.span(fb.Span))
		} else {
			d.bindings[i] = d.places.NewBinding(name, fb.Mutable, fb.ByMove, scope, d.span(fb.Span))
		}
	}
}

func (d *funcDecoder) binding(idx int, sp FileSpan) place.BindingID {
	if idx < 0 || idx >= len(d.bindings) {
		d.fail(diag.CfgUnknownPlace, sp, "function %q: unknown binding %d", d.ff.Name, idx)
		return place.NoBindingID
	}
	return d.bindings[idx]
}

func (d *funcDecoder) placeOf(fp *FilePlace, sp FileSpan) place.PlaceID {
	if fp == nil {
		d.fail(diag.CfgUnknownPlace, sp, "function %q: missing place", d.ff.Name)
		return place.NoPlaceID
	}
	base := d.binding(fp.Base, sp)
	if !base.IsValid() {
		return place.NoPlaceID
	}
	projs := make([]place.Projection, 0, len(fp.Projs))
	for _, p := range fp.Projs {
		switch p.Kind {
		case ProjField:
			projs = append(projs, place.Projection{Kind: place.ProjectionField, Field: d.strings.Intern(p.Field)})
		case ProjIndex:
			projs = append(projs, place.Projection{Kind: place.ProjectionIndex})
		case ProjDeref:
			projs = append(projs, place.Projection{Kind: place.ProjectionDeref})
		default:
			d.fail(diag.CfgUnknownPlace, sp, "function %q: unknown projection %q", d.ff.Name, p.Kind)
			return place.NoPlaceID
		}
	}
	return d.places.Resolve(base, projs)
}

func (d *funcDecoder) decodeOp(idx int, fo *FileOp) (cfg.Op, bool) {
	op := cfg.Op{Span: d.span(fo.Span)}
	switch fo.Kind {
	case OpDecl:
		op.Kind = cfg.OpDecl
		op.Decl = cfg.DeclOp{Binding: d.binding(fo.Binding, fo.Span), Init: fo.Init}
	case OpRead:
		op.Kind = cfg.OpRead
		op.Read = cfg.ReadOp{Place: d.placeOf(fo.Place, fo.Span)}
	case OpWrite:
		op.Kind = cfg.OpWrite
		op.Write = cfg.WriteOp{Place: d.placeOf(fo.Place, fo.Span)}
	case OpBorrow:
		op.Kind = cfg.OpBorrow
		kind := cfg.BorrowShared
		if fo.Exclusive {
			kind = cfg.BorrowExclusive
		}
		op.Borrow = cfg.BorrowOp{
			Dest:  d.binding(fo.Dest, fo.Span),
			Kind:  kind,
			Place: d.placeOf(fo.Place, fo.Span),
		}
	case OpUseBorrow:
		op.Kind = cfg.OpUseBorrow
		op.UseBorrow = cfg.UseBorrowOp{Ref: d.binding(fo.Ref, fo.Span), Write: fo.Write}
	case OpMove:
		op.Kind = cfg.OpMove
		dest := place.NoBindingID
		if fo.Dest != None {
			dest = d.binding(fo.Dest, fo.Span)
		}
		op.Move = cfg.MoveOp{From: d.placeOf(fo.Place, fo.Span), Dest: dest}
	case OpCall:
		op.Kind = cfg.OpCall
		call := cfg.CallOp{Callee: d.strings.Intern(fo.Callee)}
		if fo.Recv != nil {
			call.Recv = d.placeOf(fo.Recv, fo.Span)
		}
		if fo.Dest != None {
			call.Dest = d.binding(fo.Dest, fo.Span)
		}
		for _, a := range fo.Args {
			arg := cfg.CallArg{Place: d.placeOf(&a.Place, fo.Span)}
			switch a.Mode {
			case ArgRead:
				arg.Mode = cfg.ArgRead
			case ArgMove:
				arg.Mode = cfg.ArgMove
			case ArgBorrowExcl:
				arg.Mode = cfg.ArgBorrowExclusive
			default:
				d.fail(diag.CfgInvalidOp, fo.Span,
					"function %q: op %d has unknown argument mode %q", d.ff.Name, idx, a.Mode)
				return cfg.Op{}, false
			}
			call.Args = append(call.Args, arg)
		}
		op.Call = call
	case OpEndScope:
		op.Kind = cfg.OpEndScope
		if fo.Scope < 0 || fo.Scope >= len(d.scopes) {
			d.fail(diag.CfgUnknownScope, fo.Span,
				"function %q: op %d ends unknown scope %d", d.ff.Name, idx, fo.Scope)
			return cfg.Op{}, false
		}
		op.EndScope = cfg.EndScopeOp{Scope: d.scopes[fo.Scope]}
	case OpBranch:
		op.Kind = cfg.OpBranch
		var cond place.PlaceID
		if fo.Place != nil {
			cond = d.placeOf(fo.Place, fo.Span)
		}
		op.Branch = cfg.BranchOp{Cond: cond, Then: fo.Then, Else: fo.Else}
	case OpReturn:
		op.Kind = cfg.OpReturn
		ret := cfg.ReturnOp{HasValue: fo.HasValue}
		if fo.HasValue {
			ret.Value = d.placeOf(fo.Place, fo.Span)
		}
		op.Return = ret
	default:
		d.fail(diag.CfgInvalidOp, fo.Span,
			"function %q: op %d has unknown kind %q", d.ff.Name, idx, fo.Kind)
		return cfg.Op{}, false
	}
	if !d.ok {
		return cfg.Op{}, false
	}
	return op, true
}
