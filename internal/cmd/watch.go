package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/flatten/internal/extractor"
	"github.com/harrison/flatten/internal/logger"
	"github.com/harrison/flatten/internal/watcher"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <directory>...",
		Short: "Flatten directories automatically when they change",
		Long: `Watch one or more directories and flatten each one whenever its
contents change. Bursts of filesystem activity are debounced, so a run
starts only after the directory has been quiet for the debounce period.

Runs use the same options as "flatten run" and are recorded in the
history, so each one remains undoable. Watching continues until
interrupted.

Examples:
  flatten watch ~/Downloads
  flatten watch --debounce 10s --extract ~/Downloads ~/Desktop/inbox`,
		Args: cobra.MinimumNArgs(1),
		RunE: watchCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .flatten/config.yaml)")
	cmd.Flags().Duration("debounce", watcher.DefaultDebounce, "Quiet period before a changed directory is flattened")
	cmd.Flags().Int("max-depth", 0, "Limit scan depth (0 = unlimited)")
	cmd.Flags().Bool("include-hidden", false, "Include hidden files and directories")
	cmd.Flags().StringSlice("ext", nil, "Only process files with these extensions (e.g. .pdf,.jpg)")
	cmd.Flags().Bool("global-dedup", false, "Delete files whose content already exists under the target, regardless of name")
	cmd.Flags().Bool("no-dedup", false, "Rename same-name collisions even when content is identical")
	cmd.Flags().Bool("extract", false, "Unpack supported archives (.zip, .tar.gz, .tgz) before flattening")
	cmd.Flags().Bool("recurse-archives", false, "Unpack archives found inside extracted output")
	cmd.Flags().Bool("delete-archives", false, "Delete archives after successful extraction")
	cmd.Flags().Bool("keep-empty-dirs", false, "Leave emptied directories in place")
	cmd.Flags().Bool("verbose", false, "Show per-file progress and debug logging")

	return cmd
}

// watchCommand implements the watch command logic
func watchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := buildOptions(cmd, cfg)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logLevel := cfg.LogLevel
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(cmd.ErrOrStderr(), logLevel)

	// Validate every target up front so a typo fails immediately instead
	// of on the first change event.
	e := extractor.New(opts)
	for _, root := range args {
		if _, err := os.Stat(root); err != nil {
			return fmt.Errorf("cannot watch %s: %w", root, err)
		}
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")

	run := func(ctx context.Context, root string) {
		result, err := e.Run(ctx, root)
		if err != nil {
			log.Errorf("%s: %v", root, err)
			return
		}
		log.Infof("%s: moved %d, renamed %d, duplicates %d, errors %d",
			root, result.Moved, result.Renamed,
			result.ContentDuplicates+result.GlobalDuplicates, len(result.Errors))
		for _, itemErr := range result.Errors {
			log.Warnf("  %s: %s", itemErr.Path, itemErr.Reason)
		}
	}

	w, err := watcher.New(args, run, watcher.Options{Debounce: debounce, Log: log})
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Flatten once on startup so pre-existing backlog is handled without
	// waiting for a change.
	for _, root := range args {
		run(ctx, root)
	}

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nStopped watching\n")
	return nil
}
