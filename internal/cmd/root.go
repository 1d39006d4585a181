package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for flatten
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Flatten directory trees into a single level",
		Long: `Flatten moves every file beneath a target directory up into the
directory itself, resolving name collisions, removing duplicate content,
optionally unpacking archives, and cleaning up emptied folders.

Every run is recorded in a per-directory history log, so the most recent
run can be undone with the undo command. Targets must live inside a
configured allowed root; anything else is refused before any file moves.

Configuration is loaded from .flatten/config.yaml if present.
CLI flags override configuration file settings.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewUndoCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewWatchCommand())

	return cmd
}
