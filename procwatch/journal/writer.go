package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch"
	"github.com/pkg/errors"
)

// entry is the on-disk JSON envelope around one Event.
type entry struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data procwatch.Event `json:"data"`
}

// Writer is a journaler that writes line-delimited JSON events into an
// io.Writer. A single Write is one buffered append, so concurrent writers
// to the same *os.File interleave whole lines, never partial ones.
type Writer struct{ w io.Writer }

var _ procwatch.Journaler = Writer{}

// NewWriter creates a new journal writer around w.
func NewWriter(w io.Writer) Writer {
	return Writer{w}
}

// Write encodes ev as one JSON line and appends it to the underlying
// writer.
func (l Writer) Write(ev procwatch.Event) error {
	buf := bytes.Buffer{}
	buf.Grow(512)

	if err := json.NewEncoder(&buf).Encode(entry{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}
	return nil
}

// MultiWriter returns a Journaler that fans every Write out to each of ws,
// returning the first error encountered (if any) after attempting all of
// them.
func MultiWriter(ws ...procwatch.Journaler) procwatch.Journaler {
	return multiWriter{ws}
}

type multiWriter struct{ writers []procwatch.Journaler }

func (w multiWriter) Write(ev procwatch.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HumanWriter renders events as single-line, human-readable text instead
// of JSON, intended for a terminal or syslog-style destination running
// alongside the machine-readable journal.
type HumanWriter struct {
	name string
	w    io.Writer
}

var _ procwatch.Journaler = HumanWriter{}

// NewHumanWriter creates a HumanWriter labelled name, writing to w. An
// empty name omits the label.
func NewHumanWriter(name string, w io.Writer) HumanWriter {
	return HumanWriter{name, w}
}

func (h HumanWriter) Write(ev procwatch.Event) error {
	sb := strings.Builder{}
	sb.Grow(128)

	sb.WriteString(time.Now().Format(time.RFC3339))
	sb.WriteByte(' ')
	if h.name != "" {
		sb.WriteByte('[')
		sb.WriteString(h.name)
		sb.WriteString("] ")
	}
	sb.WriteString(ev.Type())

	if fields, err := json.Marshal(ev); err == nil && string(fields) != "{}" {
		sb.WriteByte(' ')
		sb.Write(fields)
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(h.w, sb.String())
	return errors.Wrap(err, "failed to write event")
}
