package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"borrowck/internal/analysis"
	"borrowck/internal/config"
	"borrowck/internal/diag"
	"borrowck/internal/diagfmt"
	"borrowck/internal/module"
	"borrowck/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <module.bmod>",
	Short: "Analyze a compiled module for borrow conflicts",
	Long:  `Check reads a compiled module file, rebuilds its control-flow graphs, and reports aliasing conflicts, moves of borrowed values, uses of moved or uninitialized bindings, and dangling references`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("format", "", "output format (pretty|json), overrides config")
	checkCmd.Flags().String("config", "", "path to borrowck.toml (default: search upward)")
	checkCmd.Flags().Bool("stop-on-first-error", false, "abort after the first error diagnostic")
	checkCmd.Flags().Bool("allow-partial-move-use", false, "permit by-value use of partially moved aggregates")
	checkCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	checkCmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	checkCmd.Flags().Bool("cache", false, "reuse cached results for unchanged inputs")
	checkCmd.Flags().Bool("basename", false, "print file basenames instead of full paths")
}

func runCheck(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}

	colorize, err := resolveColor(cmd, cfg.Output.Color)
	if err != nil {
		return err
	}
	color.NoColor = !colorize

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read module: %w", err)
	}
	policy := cfg.AnalysisConfig()

	useCache, _ := cmd.Flags().GetBool("cache")
	var cache *module.Cache
	var key module.Digest
	if useCache {
		cache, err = module.OpenCache("borrowck")
		if err != nil {
			return fmt.Errorf("failed to open result cache: %w", err)
		}
		key = module.DigestOf(raw, policy)
		if payload, hit, err := cache.Get(key); err == nil && hit {
			return renderCached(cmd, cfg, payload)
		}
	}

	bag := diag.NewBag(bagCap(policy.MaxDiagnostics))
	m, err := module.Decode(bytes.NewReader(raw), diag.BagReporter{Bag: bag})
	if err != nil {
		return err
	}

	report, err := analysis.AnalyzeModule(cmd.Context(), m, policy)
	if err != nil {
		return err
	}
	bag.Merge(report.Bag)

	if cache != nil {
		payload := &module.Payload{
			Diags:     bag.Items(),
			HasErrors: bag.HasErrors(),
		}
		for i := 0; i < m.Files.Len(); i++ {
			if f := m.Files.Get(source.FileID(i)); f != nil {
				payload.FilePaths = append(payload.FilePaths, f.Path)
			}
		}
		if err := cache.Put(key, payload); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to write result cache: %v\n", err)
		}
	}

	if err := render(cmd, cfg, bag, m.Files); err != nil {
		return err
	}

	if timings, _ := cmd.Root().PersistentFlags().GetBool("timings"); timings {
		fmt.Fprint(cmd.ErrOrStderr(), report.Timer.Summary())
	}
	if bag.HasErrors() {
		os.Exit(1)
	}
	return nil
}

func bagCap(configured int) int {
	if configured > 0 {
		return configured
	}
	return analysis.DefaultMaxDiagnostics
}

func loadConfig(cmd *cobra.Command) (config.File, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.File{}, err
	}
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.File{}, err
	}
	found, ok, err := config.Find(wd)
	if err != nil || !ok {
		return config.Default(), err
	}
	return config.Load(found)
}

func applyFlags(cmd *cobra.Command, cfg *config.File) error {
	if cmd.Flags().Changed("stop-on-first-error") {
		v, _ := cmd.Flags().GetBool("stop-on-first-error")
		cfg.Check.StopOnFirstError = v
	}
	if cmd.Flags().Changed("allow-partial-move-use") {
		v, _ := cmd.Flags().GetBool("allow-partial-move-use")
		cfg.Check.PartialMoveOfWholeIsError = !v
	}
	if cmd.Flags().Changed("jobs") {
		v, _ := cmd.Flags().GetInt("jobs")
		cfg.Check.Jobs = v
	}
	if cmd.Flags().Changed("format") {
		v, _ := cmd.Flags().GetString("format")
		if v != "pretty" && v != "json" {
			return fmt.Errorf("unsupported format %q (must be pretty or json)", v)
		}
		cfg.Output.Format = v
	}
	if maxFlag, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics"); err == nil && maxFlag > 0 {
		cfg.Check.MaxDiagnostics = maxFlag
	}
	return nil
}

func resolveColor(cmd *cobra.Command, configured string) (bool, error) {
	mode := configured
	if cmd.Root().PersistentFlags().Changed("color") {
		mode, _ = cmd.Root().PersistentFlags().GetString("color")
	}
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return isTerminal(os.Stdout), nil
	}
	return false, fmt.Errorf("unsupported color mode %q (must be auto, always or never)", mode)
}

func render(cmd *cobra.Command, cfg config.File, bag *diag.Bag, fs *source.FileSet) error {
	bag.Sort()
	withNotes, _ := cmd.Flags().GetBool("with-notes")
	basename, _ := cmd.Flags().GetBool("basename")
	pathMode := diagfmt.PathModeFull
	if basename {
		pathMode = diagfmt.PathModeBasename
	}

	switch cfg.Output.Format {
	case "json":
		return diagfmt.JSON(cmd.OutOrStdout(), bag, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			Max:              cfg.Check.MaxDiagnostics,
			IncludeNotes:     withNotes,
			Indent:           true,
		})
	default:
		diagfmt.Pretty(cmd.OutOrStdout(), bag, fs, diagfmt.PrettyOpts{
			Color:      !color.NoColor,
			PathMode:   pathMode,
			ShowNotes:  withNotes,
			ShowSource: true,
		})
		return nil
	}
}

// renderCached replays a cache hit. Spans in cached diagnostics reference the
// original file table; rebuild a skeleton file set so positions resolve to
// the right paths even though the content is gone.
func renderCached(cmd *cobra.Command, cfg config.File, payload *module.Payload) error {
	fs := source.NewFileSet()
	for _, path := range payload.FilePaths {
		fs.AddVirtual(path, nil)
	}
	bag := diag.NewBag(bagCap(cfg.Check.MaxDiagnostics))
	for _, d := range payload.Diags {
		bag.Add(d)
	}
	if err := render(cmd, cfg, bag, fs); err != nil {
		return err
	}
	if payload.HasErrors {
		os.Exit(1)
	}
	return nil
}
