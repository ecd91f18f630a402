package flags

// Package flags defines canonical CLI flag names shared across the CLI and its
// tests. IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&v.fullPath, flags.FlagFullPath, "", "...")
//	arg := "--" + flags.FlagFullPath
const (
	FlagConfig = "config"

	// Targeting
	FlagFullPath = "full-path"
	FlagInclude  = "include"
	FlagExclude  = "exclude"
	FlagDryRun   = "dry-run"

	// Output
	FlagConsoleFormat = "console-format"
	FlagReport        = "report"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagNoConsole     = "no-console"

	// Runtime
	FlagTimeout   = "timeout"
	FlagVerbose   = "verbose"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)
