package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/flatten/internal/config"
	"github.com/harrison/flatten/internal/display"
	"github.com/harrison/flatten/internal/extractor"
	"github.com/harrison/flatten/internal/logger"
	"github.com/harrison/flatten/internal/scanner"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <directory>...",
		Short: "Flatten one or more directories",
		Long: `Flatten the given directories: every file found beneath each one is
moved up into the directory itself.

Name collisions are resolved with a numeric suffix (doc.pdf, doc_1.pdf).
A file whose content is identical to the file already holding its name
is deleted instead of renamed. With --global-dedup a file matching any
existing content under the target is deleted regardless of name.

Each target must be a subdirectory of a configured allowed root.
Operations are recorded per run, so "flatten undo" can reverse the most
recent one.

Examples:
  # Flatten the downloads folder
  flatten run ~/Downloads

  # Preview without touching anything
  flatten run --dry-run ~/Downloads

  # Unpack zip and tar.gz archives before flattening, then delete them
  flatten run --extract --delete-archives ~/Downloads

  # Content dedup across different filenames
  flatten run --global-dedup ~/Downloads

  # Only flatten PDFs, two levels deep
  flatten run --ext .pdf --max-depth 2 ~/scans

  # Machine-readable result
  flatten run --json ~/Downloads`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	// Add flags
	cmd.Flags().String("config", "", "Path to config file (default: .flatten/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "Report what would happen without moving anything")
	cmd.Flags().Int("max-depth", 0, "Limit scan depth (0 = unlimited)")
	cmd.Flags().Bool("include-hidden", false, "Include hidden files and directories")
	cmd.Flags().StringSlice("ext", nil, "Only process files with these extensions (e.g. .pdf,.jpg)")
	cmd.Flags().Bool("global-dedup", false, "Delete files whose content already exists under the target, regardless of name")
	cmd.Flags().Bool("no-dedup", false, "Rename same-name collisions even when content is identical")
	cmd.Flags().Bool("extract", false, "Unpack supported archives (.zip, .tar.gz, .tgz) before flattening")
	cmd.Flags().Bool("recurse-archives", false, "Unpack archives found inside extracted output")
	cmd.Flags().Bool("delete-archives", false, "Delete archives after successful extraction")
	cmd.Flags().Bool("keep-empty-dirs", false, "Leave emptied directories in place")
	cmd.Flags().Bool("json", false, "Print the run result as JSON")
	cmd.Flags().Bool("verbose", false, "Show per-file progress and debug logging")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := buildOptions(cmd, cfg)
	if err != nil {
		return err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logLevel := cfg.LogLevel
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(cmd.ErrOrStderr(), logLevel)

	if verbose && !jsonOut {
		progress := display.NewProgressPrinter(cmd.OutOrStdout())
		opts.Progress = progress.Step
	}

	// Ctrl-C cancels between files; completed moves stay recorded.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := extractor.New(opts)

	failed := 0
	for _, root := range args {
		if opts.DryRun {
			log.Infof("dry run on %s", root)
		} else {
			log.Infof("flattening %s", root)
		}

		result, err := e.Run(ctx, root)
		if err != nil {
			log.Errorf("%s: %v", root, err)
			failed++
			continue
		}

		if jsonOut {
			if err := writeJSON(cmd, root, result); err != nil {
				return err
			}
		} else {
			printSummary(cmd, result)
		}

		if result.Cancelled {
			log.Warnf("cancelled, completed operations are kept and undoable")
			break
		}
		if len(result.Errors) > 0 {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d directories had errors", failed)
	}
	return nil
}

// loadConfig loads the configuration file named by --config, falling
// back to the default location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildOptions merges config file settings with CLI flags. Flags take
// precedence over file settings only when actually set.
func buildOptions(cmd *cobra.Command, cfg *config.Config) (extractor.Options, error) {
	allowedRoots, err := cfg.ResolvedAllowedRoots()
	if err != nil {
		return extractor.Options{}, err
	}

	opts := extractor.Options{
		AllowedRoots: allowedRoots,
		Scan: scanner.Options{
			MaxDepth:      cfg.MaxDepth,
			Extensions:    cfg.Extensions,
			IncludeHidden: cfg.IncludeHidden,
		},
		DedupSameName:   cfg.DedupSameName,
		DedupGlobal:     cfg.DedupGlobal,
		ExtractArchives: cfg.Archive.Extract,
		RecurseArchives: cfg.Archive.Recurse,
		ArchiveMaxDepth: cfg.Archive.MaxDepth,
		DeleteArchives:  cfg.Archive.DeleteAfter,
		RemoveEmptyDirs: cfg.RemoveEmptyDirs,
	}

	if cmd.Flags().Changed("max-depth") {
		opts.Scan.MaxDepth, _ = cmd.Flags().GetInt("max-depth")
	}
	if cmd.Flags().Changed("include-hidden") {
		opts.Scan.IncludeHidden, _ = cmd.Flags().GetBool("include-hidden")
	}
	if cmd.Flags().Changed("ext") {
		opts.Scan.Extensions, _ = cmd.Flags().GetStringSlice("ext")
	}
	if cmd.Flags().Changed("no-dedup") {
		noDedup, _ := cmd.Flags().GetBool("no-dedup")
		opts.DedupSameName = !noDedup
	}
	if cmd.Flags().Changed("global-dedup") {
		opts.DedupGlobal, _ = cmd.Flags().GetBool("global-dedup")
	}
	if cmd.Flags().Changed("extract") {
		opts.ExtractArchives, _ = cmd.Flags().GetBool("extract")
	}
	if cmd.Flags().Changed("recurse-archives") {
		opts.RecurseArchives, _ = cmd.Flags().GetBool("recurse-archives")
	}
	if cmd.Flags().Changed("delete-archives") {
		opts.DeleteArchives, _ = cmd.Flags().GetBool("delete-archives")
	}
	if cmd.Flags().Changed("keep-empty-dirs") {
		keep, _ := cmd.Flags().GetBool("keep-empty-dirs")
		opts.RemoveEmptyDirs = !keep
	}
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

	return opts, nil
}

// printSummary renders one run result for humans.
func printSummary(cmd *cobra.Command, result *extractor.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\n")
	if result.DryRun {
		fmt.Fprintf(out, "Dry run, nothing was changed:\n")
	} else {
		fmt.Fprintf(out, "Run Summary:\n")
	}
	fmt.Fprintf(out, "  Moved: %d\n", result.Moved)
	fmt.Fprintf(out, "  Renamed: %d\n", result.Renamed)
	fmt.Fprintf(out, "  Duplicates removed: %d\n", result.ContentDuplicates+result.GlobalDuplicates)
	if len(result.CreatedFolders) > 0 {
		fmt.Fprintf(out, "  Archives extracted: %d\n", len(result.CreatedFolders))
	}
	if len(result.SkippedFolders) > 0 {
		fmt.Fprintf(out, "  Folders kept: %d\n", len(result.SkippedFolders))
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s: %s\n", e.Path, e.Reason)
		}
	}
}

// writeJSON emits one result object per target directory.
func writeJSON(cmd *cobra.Command, root string, result *extractor.Result) error {
	payload := struct {
		Root string `json:"root"`
		*extractor.Result
	}{Root: root, Result: result}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
