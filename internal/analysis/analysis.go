// Package analysis orchestrates the per-function pipeline: liveness first,
// then the borrow-conflict walk, with module-level fan-out and a
// deterministic merge of the results.
package analysis

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"borrowck/internal/borrowck"
	"borrowck/internal/cfg"
	"borrowck/internal/diag"
	"borrowck/internal/liveness"
	"borrowck/internal/observ"
)

// Config is the immutable per-run policy. Construct with DefaultConfig and
// adjust; the zero value means "collect everything, sequential".
type Config struct {
	StopOnFirstError          bool
	PartialMoveOfWholeIsError bool
	// MaxDiagnostics caps the merged bag. Zero means DefaultMaxDiagnostics.
	MaxDiagnostics int
	// Jobs bounds the number of functions analyzed concurrently. Zero means
	// one worker per CPU.
	Jobs int
}

// DefaultMaxDiagnostics is the merged-bag cap used when the config leaves
// MaxDiagnostics at zero.
const DefaultMaxDiagnostics = 256

// DefaultConfig returns the standard analysis policy.
func DefaultConfig() Config {
	return Config{
		PartialMoveOfWholeIsError: true,
		MaxDiagnostics:            DefaultMaxDiagnostics,
	}
}

func (c Config) jobs() int {
	if c.Jobs > 0 {
		return c.Jobs
	}
	return runtime.NumCPU()
}

func (c Config) maxDiagnostics() int {
	if c.MaxDiagnostics > 0 {
		return c.MaxDiagnostics
	}
	return DefaultMaxDiagnostics
}

// FuncReport holds the outcome of analyzing a single function.
type FuncReport struct {
	Func    *cfg.Func
	Live    *liveness.Result
	Borrows *borrowck.Table
	Bag     *diag.Bag
}

// Report is the merged outcome for a whole module. Funcs is parallel to
// Module.Funcs; Bag holds every function's diagnostics in function order.
type Report struct {
	Module *cfg.Module
	Funcs  []FuncReport
	Bag    *diag.Bag
	Timer  *observ.Timer
}

// HasErrors reports whether any function produced an error diagnostic.
func (r *Report) HasErrors() bool {
	return r != nil && r.Bag.HasErrors()
}

// AnalyzeFunc runs the pipeline for one function.
func AnalyzeFunc(fn *cfg.Func, m *cfg.Module, config Config) FuncReport {
	bag := diag.NewBag(config.maxDiagnostics())
	live := liveness.Analyze(fn)
	opts := borrowck.Options{
		Reporter:                  diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		StopOnFirstError:          config.StopOnFirstError,
		PartialMoveOfWholeIsError: config.PartialMoveOfWholeIsError,
	}
	if m != nil {
		opts.Strings = m.Strings
	}
	res := borrowck.Check(fn, live, opts)
	bag.Sort()
	return FuncReport{Func: fn, Live: live, Borrows: res.Borrows, Bag: bag}
}

// AnalyzeModule fans the per-function pipeline out over an errgroup bounded
// by Config.Jobs and merges the results in declared function order, so the
// output is independent of scheduling. With StopOnFirstError the merge stops
// at the first function that produced an error; later functions may still
// have been analyzed but their diagnostics are dropped.
func AnalyzeModule(ctx context.Context, m *cfg.Module, config Config) (*Report, error) {
	report := &Report{
		Module: m,
		Funcs:  make([]FuncReport, len(m.Funcs)),
		Bag:    diag.NewBag(config.maxDiagnostics()),
		Timer:  observ.NewTimer(),
	}
	phase := report.Timer.Begin("analyze")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.jobs())
	for i := range m.Funcs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Funcs[i] = AnalyzeFunc(m.Funcs[i], m, config)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range report.Funcs {
		report.Bag.Merge(report.Funcs[i].Bag)
		if config.StopOnFirstError && report.Funcs[i].Bag.HasErrors() {
			break
		}
	}
	report.Timer.End(phase, "")
	return report, nil
}
