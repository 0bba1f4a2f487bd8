// Package output renders command results as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// TextRenderer is implemented by results that know their text layout.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Formatter writes results in one format.
type Formatter struct {
	format Format
	w      io.Writer
}

// NewFormatter resolves FormatAuto against w and returns a formatter.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: DetectFormat(w, format), w: w}
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format { return f.format }

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer { return f.w }

// IsJSON reports whether results are written as JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Print writes v as indented JSON, or through its RenderText method, or with
// fmt for anything else.
func (f *Formatter) Print(v any) error {
	if f.format == FormatJSON {
		enc := json.NewEncoder(f.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	switch val := v.(type) {
	case TextRenderer:
		return val.RenderText(f.w)
	case string:
		_, err := fmt.Fprintln(f.w, val)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.w, val.String())
		return err
	default:
		_, err := fmt.Fprintf(f.w, "%v\n", val)
		return err
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd fits in int
}

// DetectFormat resolves FormatAuto: text for a terminal, JSON otherwise.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto && explicit != "" {
		return explicit
	}
	if IsTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

// ParseFormat parses a format string. Unknown values mean auto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}
