// Package logger provides the leveled console logger used by the flatten
// commands. Output is timestamped and colorized when writing to a TTY.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering.
const (
	levelDebug int = 0
	levelInfo  int = 1
	levelWarn  int = 2
	levelError int = 3
)

// ConsoleLogger writes leveled, timestamped messages to a writer. It is
// safe for concurrent use.
type ConsoleLogger struct {
	writer      io.Writer
	level       int
	mutex       sync.Mutex
	colorOutput bool
}

// New creates a ConsoleLogger writing to w. Valid levels are debug, info,
// warn and error (case-insensitive); anything else defaults to info.
// Color is enabled only when w is a terminal.
func New(w io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      w,
		level:       parseLevel(level),
		colorOutput: isTerminal(w),
	}
}

// parseLevel maps a level name to its numeric value, defaulting to info.
func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// isTerminal reports whether the writer is a color-capable TTY.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Debugf logs at debug level.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.logf(levelDebug, color.FgBlue, "DEBUG", format, args...)
}

// Infof logs at info level.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.logf(levelInfo, color.FgGreen, "INFO", format, args...)
}

// Warnf logs at warn level.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.logf(levelWarn, color.FgYellow, "WARN", format, args...)
}

// Errorf logs at error level.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.logf(levelError, color.FgRed, "ERROR", format, args...)
}

func (cl *ConsoleLogger) logf(level int, attr color.Attribute, tag, format string, args ...any) {
	if cl.writer == nil || level < cl.level {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05")
	label := fmt.Sprintf("[%s] %s", timestamp, tag)
	if cl.colorOutput {
		label = color.New(attr).Sprint(label)
	}
	fmt.Fprintf(cl.writer, "%s %s\n", label, fmt.Sprintf(format, args...))
}
