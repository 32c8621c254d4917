// Package marker persists the set of completed bootstrap phases as one
// zero-byte file per phase under a marker directory. Presence of a file
// means the phase's action returned success at least once; absence means
// never-run or last-run-failed. Files are only ever created by the
// runner; removing one is the operator's way to force re-execution.
package marker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a persistent set of completed-phase names.
type Store struct {
	dir string
}

// New creates (if needed) the marker directory and returns a Store.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("marker dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create marker dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the marker directory path.
func (s *Store) Dir() string { return s.dir }

// Done reports whether a marker exists for name.
func (s *Store) Done(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Record creates the marker for name. Recording an already-recorded
// marker is a no-op.
func (s *Store) Record(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("record marker %s: %w", name, err)
	}
	return f.Close()
}

// Clear removes the marker for name so the phase runs again. Clearing
// an absent marker is a no-op.
func (s *Store) Clear(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear marker %s: %w", name, err)
	}
	return nil
}

// List returns all recorded phase names in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ValidateName rejects phase names that would escape the marker
// directory or collide with path syntax. Allowed: [A-Za-z0-9._-], no
// leading dot, no path separators, no "..".
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("phase name must not be empty")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid phase name %q: must not start with '.'", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("invalid phase name %q: allowed [A-Za-z0-9._-]", name)
		}
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid phase name %q: must not contain '..'", name)
	}
	return nil
}
