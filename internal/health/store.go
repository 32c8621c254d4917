package health

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore persists samples as a two-column CSV (unix_ts,memory_mb)
// capped at a fixed row count. The trim is a truncate-and-rewrite, so
// an advisory lock guards against a cron-triggered report overlapping a
// watch loop.
type FileStore struct {
	path string
	cap  int
}

// NewFileStore returns a store writing to path, retaining at most cap
// rows.
func NewFileStore(path string, cap int) (*FileStore, error) {
	if cap <= 0 {
		return nil, fmt.Errorf("metrics store: cap must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	return &FileStore{path: path, cap: cap}, nil
}

// Path returns the CSV location.
func (f *FileStore) Path() string { return f.path }

// Load reads all retained samples into a Series.
func (f *FileStore) Load() (*Series, error) {
	s := NewSeries(f.cap)
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	defer func() { _ = file.Close() }()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		smp, err := parseLine(sc.Text())
		if err != nil {
			// A torn write from a crashed writer; skip the row rather
			// than refuse the whole history.
			continue
		}
		s.Add(smp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metrics file: %w", err)
	}
	return s, nil
}

// Append adds one sample and trims to cap, rewriting the file under an
// advisory lock.
func (f *FileStore) Append(smp Sample) error {
	unlock, err := lockFile(f.path + ".lock")
	if err != nil {
		return fmt.Errorf("lock metrics file: %w", err)
	}
	defer unlock()

	series, err := f.Load()
	if err != nil {
		return err
	}
	series.Add(smp)

	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	w := bufio.NewWriter(file)
	for _, s := range series.All() {
		fmt.Fprintf(w, "%d,%.0f\n", s.At.Unix(), s.MemoryMB)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush metrics file: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

func parseLine(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	ts, mb, ok := strings.Cut(line, ",")
	if !ok {
		return Sample{}, fmt.Errorf("malformed metrics row %q", line)
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	mem, err := strconv.ParseFloat(strings.TrimSpace(mb), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("malformed memory value %q: %w", mb, err)
	}
	return Sample{At: time.Unix(sec, 0), MemoryMB: mem}, nil
}
