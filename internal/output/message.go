package output

import (
	"fmt"
	"io"
)

// Messenger writes human notes to stderr so stdout stays parseable.
type Messenger struct {
	W     io.Writer
	Quiet bool
}

// Info prints an informational note.
func (m Messenger) Info(format string, args ...any) {
	m.print("", format, args...)
}

// Warn prints a warning. Warnings ignore Quiet.
func (m Messenger) Warn(format string, args ...any) {
	if m.W != nil {
		_, _ = fmt.Fprintf(m.W, "warning: "+format+"\n", args...)
	}
}

// Success prints a completion note.
func (m Messenger) Success(format string, args ...any) {
	m.print("ok: ", format, args...)
}

func (m Messenger) print(prefix, format string, args ...any) {
	if m.Quiet || m.W == nil {
		return
	}
	_, _ = fmt.Fprintf(m.W, prefix+format+"\n", args...)
}
