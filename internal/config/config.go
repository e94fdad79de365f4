// Package config loads the analyzer's borrowck.toml manifest and translates
// it into run policies.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"borrowck/internal/analysis"
)

// ManifestName is the file the analyzer looks for when no explicit config
// path is given.
const ManifestName = "borrowck.toml"

// File mirrors the manifest layout. Absent keys keep their defaults.
type File struct {
	Check  CheckSection  `toml:"check"`
	Output OutputSection `toml:"output"`
}

// CheckSection configures the analysis itself.
type CheckSection struct {
	StopOnFirstError          bool `toml:"stop_on_first_error"`
	PartialMoveOfWholeIsError bool `toml:"partial_move_of_whole_is_error"`
	MaxDiagnostics            int  `toml:"max_diagnostics"`
	Jobs                      int  `toml:"jobs"`
}

// OutputSection configures rendering.
type OutputSection struct {
	// Format selects the renderer: "pretty" or "json".
	Format string `toml:"format"`
	// Color is "auto", "always" or "never".
	Color   string `toml:"color"`
	Timings bool   `toml:"timings"`
}

// Default returns the manifest the analyzer assumes when none is found.
func Default() File {
	return File{
		Check: CheckSection{
			PartialMoveOfWholeIsError: true,
			MaxDiagnostics:            analysis.DefaultMaxDiagnostics,
		},
		Output: OutputSection{
			Format: "pretty",
			Color:  "auto",
		},
	}
}

// Load parses the manifest at path on top of the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return File{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find walks from startDir toward the filesystem root looking for the
// manifest. The second result is false when no manifest exists on the path.
func Find(startDir string) (string, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, err
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, true, nil
		case err != nil && !os.IsNotExist(err):
			return "", false, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

func (f File) validate() error {
	switch f.Output.Format {
	case "pretty", "json":
	default:
		return fmt.Errorf("invalid [output].format %q: want \"pretty\" or \"json\"", f.Output.Format)
	}
	switch f.Output.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid [output].color %q: want \"auto\", \"always\" or \"never\"", f.Output.Color)
	}
	if f.Check.MaxDiagnostics < 0 {
		return fmt.Errorf("invalid [check].max_diagnostics %d: must be non-negative", f.Check.MaxDiagnostics)
	}
	if f.Check.Jobs < 0 {
		return fmt.Errorf("invalid [check].jobs %d: must be non-negative", f.Check.Jobs)
	}
	return nil
}

// AnalysisConfig translates the manifest into the analysis policy.
func (f File) AnalysisConfig() analysis.Config {
	return analysis.Config{
		StopOnFirstError:          f.Check.StopOnFirstError,
		PartialMoveOfWholeIsError: f.Check.PartialMoveOfWholeIsError,
		MaxDiagnostics:            f.Check.MaxDiagnostics,
		Jobs:                      f.Check.Jobs,
	}
}
