package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const metaFileName = "meta.json"

// Store owns the on-disk state of the supervisor: one metadata directory
// per shell plus its two append-only log files. Writes go through a temp
// file and an atomic rename so readers never observe a partial document.
// There is no cross-process locking beyond that; one supervising instance
// per run identity is assumed.
type Store struct {
	base string
}

func NewStore(base string) (*Store, error) {
	s := &Store{base: base}
	for _, dir := range []string{base, s.metaRoot(), s.logRoot(), s.SocketsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store init %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) Base() string             { return s.base }
func (s *Store) metaRoot() string         { return filepath.Join(s.base, "meta") }
func (s *Store) logRoot() string          { return filepath.Join(s.base, "logs") }
func (s *Store) SocketsDir() string       { return filepath.Join(s.base, "sockets") }
func (s *Store) MetaDir(id string) string { return filepath.Join(s.metaRoot(), id) }

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.MetaDir(id), metaFileName)
}

// LogPaths returns the fixed stdout/stderr log locations for id. They are
// assigned once at creation time and never change.
func (s *Store) LogPaths(id string) (stdout, stderr string) {
	return filepath.Join(s.logRoot(), id+".stdout.log"),
		filepath.Join(s.logRoot(), id+".stderr.log")
}

// Save persists the record atomically: marshal to <dir>/meta.json.tmp and
// rename over the final path.
func (s *Store) Save(r *Record) error {
	dir := s.MetaDir(r.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	final := filepath.Join(dir, metaFileName)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	return nil
}

// Load reads the record for id. The boolean is false when no record exists;
// a present but unreadable document is an error.
func (s *Store) Load(id string) (*Record, bool, error) {
	b, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, fmt.Errorf("load %s: %w", id, err)
	}
	return &r, true, nil
}

// IDs lists every shell id that has a metadata directory.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.metaRoot())
	if err != nil {
		return nil, fmt.Errorf("list shells: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Delete removes the metadata directory and both log files for id. Absent
// log files are not an error; the caller decides whether a missing record
// is.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(s.MetaDir(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	stdout, stderr := s.LogPaths(id)
	for _, p := range []string{stdout, stderr} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}
