package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/flatten/internal/history"
	"github.com/harrison/flatten/internal/safety"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <directory>",
		Short: "List recorded flatten runs for a directory",
		Long: `List the flatten runs recorded for a directory, most recent first.

With --batch, the individual operations of one run are shown instead.

Examples:
  flatten history ~/Downloads
  flatten history --batch 2f6b6d1c-... ~/Downloads`,
		Args: cobra.ExactArgs(1),
		RunE: historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .flatten/config.yaml)")
	cmd.Flags().String("batch", "", "Show the operations of one recorded run")
	cmd.Flags().Bool("json", false, "Print the listing as JSON")

	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
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

	store, err := history.Open(absRoot)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()
	jsonOut, _ := cmd.Flags().GetBool("json")

	if batchID, _ := cmd.Flags().GetString("batch"); batchID != "" {
		records, err := store.BatchRecords(ctx, batchID)
		if err != nil {
			return err
		}
		if jsonOut {
			return encodeJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintf(out, "No operations recorded for run %s\n", batchID)
			return nil
		}
		for _, rec := range records {
			if rec.ContentDuplicate {
				fmt.Fprintf(out, "  removed duplicate %s (kept %s)\n", rec.OriginalPath, rec.DuplicateOf)
			} else {
				fmt.Fprintf(out, "  moved %s -> %s\n", rec.OriginalPath, rec.NewPath)
			}
		}
		return nil
	}

	batches, err := store.Batches(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return encodeJSON(out, batches)
	}
	if len(batches) == 0 {
		fmt.Fprintf(out, "No runs recorded for %s\n", absRoot)
		return nil
	}

	for _, b := range batches {
		fmt.Fprintf(out, "%s  %s  %d operation(s), %d duplicate(s)\n",
			b.StartedAt.Format("2006-01-02 15:04:05"), b.BatchID, b.Records, b.Duplicates)
	}
	return nil
}

// encodeJSON writes v as indented JSON.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return nil
}
