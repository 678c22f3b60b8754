// Package journal provides file-backed implementations of procwatch's
// Journaler interface, plus a file-locking abstraction ensuring only one
// supervisor instance runs against a given journal file at a time.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrLockedElsewhere is returned when NewFileLockJournaler can't acquire
// the file lock because another instance already holds it.
var ErrLockedElsewhere = errors.New("journal: file already locked elsewhere")

// FileLockJournaler is a journaler that flocks a file before writing to
// it, so a second supervisor instance pointed at the same journal path
// fails fast at startup rather than interleaving with the first. It must
// be closed by the caller (or by the process exiting) to release the
// lock.
//
// The lock only guards writers; readers, notably Reader, need not acquire
// it, since every Write is a single buffered append and the file is
// therefore always valid to scan.
type FileLockJournaler struct {
	Writer
	f *os.File
	l *flock.Flock
}

var _ procwatch.Journaler = (*FileLockJournaler)(nil)

// NewFileLockJournaler opens path (creating it and any missing parent
// directories) and acquires an exclusive flock on it immediately,
// returning ErrLockedElsewhere if some other process already holds it.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait behaves like NewFileLockJournaler but retries
// the lock acquisition until ctx is done.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal file")
	}

	l := flock.New(path)

	var locked bool
	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to acquire journal lock")
	}
	if !locked {
		f.Close()
		return nil, ErrLockedElsewhere
	}

	return &FileLockJournaler{
		Writer: NewWriter(f),
		f:      f,
		l:      l,
	}, nil
}

// Close closes the underlying file and releases the flock.
func (j *FileLockJournaler) Close() error {
	j.f.Close()
	return j.l.Unlock()
}
