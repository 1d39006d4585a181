// Package display renders run progress and result summaries for the CLI.
package display

import (
	"fmt"
	"io"
	"path/filepath"
)

// ProgressPrinter writes one `[N/total] name` line per processed file.
// It satisfies the orchestrator's progress callback signature.
type ProgressPrinter struct {
	writer io.Writer
}

// NewProgressPrinter creates a progress printer writing to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{writer: w}
}

// Step reports one processed file. index is 1-based.
func (p *ProgressPrinter) Step(index, total int, path string) {
	if p.writer == nil {
		return
	}
	fmt.Fprintf(p.writer, "  [%d/%d] %s\n", index, total, filepath.Base(path))
}
