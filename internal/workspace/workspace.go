// Package workspace manages the per-request scratch directories that hold a
// submitted source file and its build artifacts.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/metrics"
)

var ErrReleased = errors.New("workspace already released")

// Manager creates workspaces under a common parent directory.
type Manager struct {
	root string
}

// NewManager ensures root exists. An empty root means os.TempDir().
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// Workspace is exclusively owned by one request. Release must be called on
// every exit path; it is safe to call more than once.
type Workspace struct {
	Root       string
	SourcePath string

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// Acquire creates a fresh, uniquely named directory for lang.
func (m *Manager) Acquire(lang languages.Language) (*Workspace, error) {
	dir := filepath.Join(m.root, "ws-"+uuid.NewString())
	// Mkdir (not MkdirAll) fails if the name is somehow taken.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	metrics.LiveWorkspaces.Inc()

	return &Workspace{
		Root:       dir,
		SourcePath: filepath.Join(dir, lang.SourceName()),
	}, nil
}

// WriteSource stores the submitted code at SourcePath.
func (w *Workspace) WriteSource(source string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return ErrReleased
	}
	if err := os.WriteFile(w.SourcePath, []byte(source), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// Release recursively removes the workspace.
func (w *Workspace) Release() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.released = true
		w.mu.Unlock()

		metrics.LiveWorkspaces.Dec()
		if rmErr := os.RemoveAll(w.Root); rmErr != nil {
			err = fmt.Errorf("remove workspace %s: %w", w.Root, rmErr)
		}
	})
	return err
}
