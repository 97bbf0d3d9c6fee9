// Package output prints one-line CLI notices with a consistent gutter,
// used by the setup and search commands where the full TUI would be
// overkill.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

type level int

const (
	levelPlain level = iota
	levelSuccess
	levelWarning
	levelError
)

// Writer renders leveled notice lines to a single destination.
type Writer struct {
	w      io.Writer
	color  bool
	styles [4]lipgloss.Style
}

// New creates a Writer. Color is dropped when NO_COLOR is set.
func New(w io.Writer) *Writer {
	out := &Writer{w: w}
	if _, noColor := os.LookupEnv("NO_COLOR"); !noColor {
		out.color = true
		out.styles = [4]lipgloss.Style{
			levelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			levelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			levelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		}
	}
	return out
}

func (o *Writer) line(lvl level, gutter, msg string) {
	if gutter == "" {
		gutter = " "
	}
	if o.color && lvl != levelPlain {
		msg = o.styles[lvl].Render(msg)
	}
	_, _ = fmt.Fprintf(o.w, "%s %s\n", gutter, msg)
}

// Status prints a message behind an arbitrary gutter glyph.
func (o *Writer) Status(gutter, msg string) { o.line(levelPlain, gutter, msg) }

// Statusf is Status with printf formatting.
func (o *Writer) Statusf(gutter, format string, args ...any) {
	o.line(levelPlain, gutter, fmt.Sprintf(format, args...))
}

// Success prints a confirmation line.
func (o *Writer) Success(msg string) { o.line(levelSuccess, "✓", msg) }

// Successf is Success with printf formatting.
func (o *Writer) Successf(format string, args ...any) {
	o.Success(fmt.Sprintf(format, args...))
}

// Warning prints an advisory line.
func (o *Writer) Warning(msg string) { o.line(levelWarning, "!", msg) }

// Warningf is Warning with printf formatting.
func (o *Writer) Warningf(format string, args ...any) {
	o.Warning(fmt.Sprintf(format, args...))
}

// Error prints a failure line.
func (o *Writer) Error(msg string) { o.line(levelError, "✗", msg) }

// Errorf is Error with printf formatting.
func (o *Writer) Errorf(format string, args ...any) {
	o.Error(fmt.Sprintf(format, args...))
}

// Newline prints a blank separator line.
func (o *Writer) Newline() {
	_, _ = fmt.Fprintln(o.w)
}
