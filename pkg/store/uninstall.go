package store

import (
	"context"
	"fmt"
	"os"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Uninstall destroys a TV: it locks install_path the same way an install
// would (so an in-flight install of the same (BA, version) can't race a
// concurrent uninstall), delegates the actual removal to the backend's
// UninstallVersion (most backends just remove installPath; a few also
// deregister elsewhere), and then clears the cache dir so no stale
// incomplete marker or cached checksum survives for a future reinstall.
func Uninstall(ctx context.Context, be backend.Backend, tv *TV, pkg types.Package) error {
	lock, err := acquireInstallLock(ctx, tv.InstallPath)
	if err != nil {
		return fmt.Errorf("locking %s: %w", tv.BA.Full, err)
	}
	defer lock.Release()

	if !tv.IsInstalled() {
		return fmt.Errorf("%s@%s is not installed", tv.BA.Short, tv.Version)
	}

	if err := be.UninstallVersion(tv.InstallPath, pkg); err != nil {
		return fmt.Errorf("uninstalling %s@%s: %w", tv.BA.Short, tv.Version, err)
	}

	if err := os.RemoveAll(tv.CachePath); err != nil {
		return fmt.Errorf("removing cache for %s@%s: %w", tv.BA.Short, tv.Version, err)
	}
	_ = os.RemoveAll(tv.DownloadPath)

	return nil
}
