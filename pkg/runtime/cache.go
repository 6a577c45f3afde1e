package runtime

import (
	"path/filepath"
	"time"

	"github.com/flanksource/clicky/task"
	"github.com/haldor-dev/rtv/pkg/cache"
	"github.com/haldor-dev/rtv/pkg/types"
)

// hostCacheFreshness bounds how long a host detection result is trusted
// before DetectCached re-searches PATH, so a tool installed or removed from
// the host between runs is noticed within a bounded window rather than
// requiring a manual cache clear.
const hostCacheFreshness = 1 * time.Hour

// DetectCached wraps Detect with an on-disk cache entry per tool short
// name, reusing the same zlib+msgpack envelope the version-list and
// release-metadata caches use (pkg/cache) rather than the ad hoc JSON file
// the teacher's own runtime cache wrote directly under os.TempDir.
func DetectCached(t *task.Task, short string, pkg types.Package, cacheDir string) (*HostInstall, error) {
	path := filepath.Join(cacheDir, "host-runtime", short+".msgpack.z")
	mgr := cache.NewManager[HostInstall](path).WithFreshFor(hostCacheFreshness)

	info, err := mgr.GetOrFetch(func() (HostInstall, error) {
		found, err := Detect(t, short, pkg)
		if err != nil {
			return HostInstall{}, err
		}
		return *found, nil
	})
	if err != nil {
		return nil, err
	}

	// A cached path may have been uninstalled since the entry was written;
	// treat that the same as a cache miss instead of returning a dangling
	// binary location.
	if !exists(info.Path) {
		_ = mgr.Clear()
		found, err := Detect(t, short, pkg)
		if err != nil {
			return nil, err
		}
		return found, nil
	}

	return &info, nil
}
