package audio

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
)

// Workspace is the scratch directory for exactly one job. No two jobs
// share a workspace, and Close removes everything it produced on every
// exit path, so artifacts never leak across job boundaries.
type Workspace struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewWorkspace creates a uuid-named scratch directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindExtraction, "workspace.create", "failed to create workspace", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// MaterializeSource writes an in-memory asset to disk so subprocess
// tools can read it. Assets that already live on disk are returned
// as-is.
func (w *Workspace) MaterializeSource(asset *Asset) (string, error) {
	if asset.Path != "" {
		return asset.Path, nil
	}
	path := w.Path("source" + extensionFor(asset.ContentType))
	if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindExtraction, "workspace.materialize", "failed to write source", err)
	}
	return path, nil
}

// Close deletes the workspace directory and all artifacts inside it.
// Safe to call more than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return os.RemoveAll(w.dir)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	default:
		return ".mp3"
	}
}
