package version

import "github.com/fatih/color"

// Build metadata for the borrowck CLI, overridable at build time via
// -ldflags "-X borrowck/internal/version.Version=...".

var (
	// Version is the semantic version of the CLI, with each component
	// colorized for terminal output.
	Version = colorize("0", "1", "0") + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

func colorize(major, minor, patch string) string {
	return color.New(color.FgYellow, color.Bold).Sprint(major) + "." +
		color.New(color.FgGreen, color.Bold).Sprint(minor) + "." +
		color.New(color.FgBlue, color.Bold).Sprint(patch)
}
