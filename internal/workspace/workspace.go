// Package workspace owns the scratch directory of a single run. Acquire
// locks and creates it; Release removes it exactly once, whatever path the
// run took to get there.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

const (
	rawDir   = "raw"
	slotsDir = "slots"
	outDir   = "out"
)

// Workspace is the transient directory tree of one run:
//
//	<root>/raw/<YYYYMMDD>/   staged raw bulletins
//	<root>/slots/            one intermediate file per slot
//	<root>/out/              encoder output awaiting archival
type Workspace struct {
	root   string
	lock   *flock.Flock
	logger *slog.Logger

	once       sync.Once
	releaseErr error
}

// Acquire takes the workspace lock, wipes whatever a previous run left
// behind, and creates a fresh tree. The lock file lives next to the
// workspace (<root>.lock) and is left in place by Release: removing it
// while another process waits on it would let two runs hold different
// locks for the same root.
func Acquire(root string, logger *slog.Logger) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("workspace path is required")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}

	lock := flock.New(root + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkspaceBusy, root)
	}

	if _, err := os.Stat(root); err == nil {
		logger.Warn("removing leftover workspace", "path", root)
	}
	if err := os.RemoveAll(root); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("remove leftover workspace: %w", err)
	}

	w := &Workspace{root: root, lock: lock, logger: logger}
	if err := w.Reset(); err != nil {
		_ = os.RemoveAll(root)
		_ = lock.Unlock()
		return nil, err
	}
	logger.Info("workspace acquired", "path", root)
	return w, nil
}

// Root is the workspace directory.
func (w *Workspace) Root() string { return w.root }

// RawDir holds staged raw files, one subdirectory per date.
func (w *Workspace) RawDir() string { return filepath.Join(w.root, rawDir) }

// SlotsDir holds intermediate files.
func (w *Workspace) SlotsDir() string { return filepath.Join(w.root, slotsDir) }

// OutDir holds encoder output.
func (w *Workspace) OutDir() string { return filepath.Join(w.root, outDir) }

// Reset empties the workspace and recreates its layout.
func (w *Workspace) Reset() error {
	for _, dir := range []string{w.RawDir(), w.SlotsDir(), w.OutDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear workspace: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
	}
	return nil
}

// Release removes the workspace and everything still inside it, then drops
// the lock. Only the first call does any work; later calls return the first
// call's error. An error means the workspace may still exist on disk.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		err := os.RemoveAll(w.root)
		if err != nil {
			w.logger.Error("failed to remove workspace", "path", w.root, "error", err)
		} else {
			w.logger.Info("workspace removed", "path", w.root)
		}
		if unlockErr := w.lock.Unlock(); unlockErr != nil {
			w.logger.Warn("failed to release workspace lock", "error", unlockErr)
		}
		w.releaseErr = err
	})
	return w.releaseErr
}
