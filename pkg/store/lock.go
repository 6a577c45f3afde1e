package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// installLock wraps a gofrs/flock file lock on a side-file next to a TV's
// install path, so exactly one process installs a given (BA, version) at a
// time. Concurrent readers (resolution, exec_env) never take this lock;
// they rely on the incomplete marker and install_path's existence instead.
type installLock struct {
	flock *flock.Flock
	path  string
}

func lockPathFor(installPath string) string {
	return installPath + ".lock"
}

// acquireInstallLock blocks (subject to ctx) until the lock is held.
func acquireInstallLock(ctx context.Context, installPath string) (*installLock, error) {
	path := lockPathFor(installPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring install lock for %s: %w", installPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire install lock for %s", installPath)
	}
	return &installLock{flock: fl, path: path}, nil
}

func (l *installLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
