// Package session attaches to or creates named tmux sessions and keeps
// a JSON metadata record per session. Records are written on creation
// only; reattachment leaves them untouched. Session destruction is an
// external concern (tmux kill-session, server exit).
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentbox/agentbox/internal/metrics"
)

// Record is the persisted session metadata.
type Record struct {
	Name      string    `json:"name"`
	WorkDir   string    `json:"workdir"`
	CreatedAt time.Time `json:"created_at"`
	PID       int       `json:"pid"` // creating process, not the tmux server
}

// Multiplexer abstracts the terminal multiplexer. The default
// implementation shells out to tmux; tests inject fakes.
type Multiplexer interface {
	// Has reports whether a session of that name exists.
	Has(name string) (bool, error)
	// Create starts a new detached session rooted at dir.
	Create(name, dir string) error
	// Attach attaches the current terminal to the session. Blocks
	// until the client detaches.
	Attach(name string) error
}

// Manager creates/attaches sessions and owns the metadata directory.
type Manager struct {
	dir  string
	mux  Multiplexer
	now  func() time.Time
	self func() int
}

// NewManager builds a Manager storing records under dir. mux may be nil
// (defaults to tmux).
func NewManager(dir string, mux Multiplexer) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("session dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", dir, err)
	}
	if mux == nil {
		mux = &tmux{}
	}
	return &Manager{dir: dir, mux: mux, now: time.Now, self: os.Getpid}, nil
}

// Ensure attaches to the named session, creating it first when absent.
// It returns whether a new session was created. Metadata is recorded on
// the create path only.
func (m *Manager) Ensure(name, workdir string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	exists, err := m.mux.Has(name)
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", name, err)
	}
	created := false
	if !exists {
		if err := m.mux.Create(name, workdir); err != nil {
			return false, fmt.Errorf("create session %s: %w", name, err)
		}
		rec := Record{Name: name, WorkDir: workdir, CreatedAt: m.now(), PID: m.self()}
		if err := m.save(rec); err != nil {
			return false, err
		}
		created = true
	}
	if err := m.mux.Attach(name); err != nil {
		return created, fmt.Errorf("attach session %s: %w", name, err)
	}
	return created, nil
}

// Load returns the metadata record for name, or nil when none exists.
func (m *Manager) Load(name string) (*Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session record %s: %w", name, err)
	}
	return &rec, nil
}

// List returns all recorded sessions.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := m.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil || rec == nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// LiveCount returns how many recorded sessions still exist in the
// multiplexer. Used by the crash monitor's event snapshots.
func (m *Manager) LiveCount() (int, error) {
	recs, err := m.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if ok, err := m.mux.Has(r.Name); err == nil && ok {
			n++
		}
	}
	metrics.SetActiveSessions(n)
	return n, nil
}

func (m *Manager) save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path(rec.Name), data, 0o600) // Only user can read/write
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".json")
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid session name %q", name)
	}
	return nil
}
