package sse

import (
	"fmt"
	"io"
	"strings"
)

// Writer formats SSE events onto an io.Writer. It is the counterpart of
// Reader: anything written by WriteEvent parses back to the same Event.
type Writer struct {
	dest io.Writer
}

// NewWriter returns a Writer that emits SSE wire format to dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteEvent writes one event followed by the blank-line terminator. Data
// containing newlines is split into one "data:" line per segment, which the
// reading side rejoins per the SSE spec.
func (w *Writer) WriteEvent(ev *Event) error {
	if ev == nil {
		return nil
	}

	var b strings.Builder

	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w.dest, b.String())
	return err
}

// WriteComment writes a comment line. Comments keep idle connections alive
// without surfacing an event on the reading side.
func (w *Writer) WriteComment(text string) error {
	_, err := fmt.Fprintf(w.dest, ": %s\n\n", text)
	return err
}
