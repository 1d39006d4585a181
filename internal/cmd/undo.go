package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/flatten/internal/filelock"
	"github.com/harrison/flatten/internal/history"
	"github.com/harrison/flatten/internal/safety"
)

// NewUndoCommand creates the undo command
func NewUndoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo <directory>",
		Short: "Reverse the most recent flatten run",
		Long: `Reverse the most recent flatten run on a directory.

Moved files return to their original locations, removed directories are
recreated as needed, and files that were deleted as content duplicates
are rebuilt from their surviving copy.

A file whose original location is now occupied is reported as a conflict
and left where it is; nothing is ever overwritten. Conflicted operations
stay in the history so a later undo can retry them once the conflict is
resolved.

Examples:
  flatten undo ~/Downloads`,
		Args: cobra.ExactArgs(1),
		RunE: undoCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .flatten/config.yaml)")

	return cmd
}

// undoCommand implements the undo command logic
func undoCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	allowedRoots, err := cfg.ResolvedAllowedRoots()
	if err != nil {
		return err
	}

	root := args[0]
	if !safety.IsSafePath(root, allowedRoots) {
		return fmt.Errorf("directory is outside the allowed locations: %s", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	lock, err := filelock.New(absRoot)
	if err != nil {
		return err
	}
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("directory is locked by another run: %s", absRoot)
	}
	defer lock.Unlock()

	store, err := history.Open(absRoot)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := store.Undo(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Restored %d file(s) from run %s\n", result.Restored, result.BatchID)

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(out, "\nConflicts (left in place, retry after resolving):\n")
		for _, c := range result.Conflicts {
			fmt.Fprintf(out, "  - %s: %s\n", c.Record.OriginalPath, c.Reason)
		}
		return fmt.Errorf("%d operation(s) could not be undone", len(result.Conflicts))
	}

	return nil
}
