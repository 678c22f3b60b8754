package stats

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// Store persists one Record per child under a base directory, as a
// "stats_<name>.raw" binary file plus a "stats_<name>.log"
// human-readable mirror.
// Every write is a write-temp-then-rename so a crash mid-write can never
// leave a half-written record for the next load to trip over.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily
// on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads the named child's record. A missing file, or one whose
// magic doesn't match, yields a fresh zeroed record and corrupt=true only
// in the latter case — the caller may want to log a stats-corrupt event
// for a bad magic but stay silent for a simply-absent file.
func (s *Store) Load(name string) (rec *Record, corrupt bool, err error) {
	raw, err := os.ReadFile(s.rawPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return NewRecord(), false, nil
	}
	if err != nil {
		return NewRecord(), false, errors.Wrapf(err, "stats: read %s", name)
	}

	rec, ok := Unmarshal(raw)
	if !ok {
		return NewRecord(), true, nil
	}
	return rec, false, nil
}

// Save atomically writes rec's binary form and human-readable summary for
// name.
func (s *Store) Save(name string, rec *Record) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return errors.Wrap(err, "stats: create directory")
	}

	if err := renameio.WriteFile(s.rawPath(name), rec.Marshal(), 0640); err != nil {
		return errors.Wrapf(err, "stats: write %s", name)
	}

	if err := renameio.WriteFile(s.logPath(name), []byte(rec.Summary(name)), 0640); err != nil {
		return errors.Wrapf(err, "stats: write summary for %s", name)
	}

	return nil
}

func (s *Store) rawPath(name string) string {
	return filepath.Join(s.dir, "stats_"+name+".raw")
}

func (s *Store) logPath(name string) string {
	return filepath.Join(s.dir, "stats_"+name+".log")
}
