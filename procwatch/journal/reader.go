package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch"
	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
)

// Reader parses journal entries written by Writer, starting from the end
// of the underlying file and walking backward one line at a time. This
// lets an operator inspect the most recent events
// without scanning the whole file forward, and without holding the
// FileLockJournaler's write lock.
type Reader struct {
	b *backwardio.Scanner
}

// NewReader creates a new journal reader over r.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read returns the next entry walking backward, or io.EOF once the start
// of the file is reached.
func (r *Reader) Read() (procwatch.Event, time.Time, error) {
	var line []byte
	var err error

	for {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	var raw struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode journal line")
	}

	event := procwatch.NewEvent(raw.Type)
	if event == nil {
		return nil, time.Time{}, fmt.Errorf("unknown event type %q", raw.Type)
	}

	if err := json.Unmarshal(raw.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, raw.Time, nil
}
