package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/haldor-dev/rtv/pkg/types"
)

// incompleteMarker is the sentinel file written into a TV's CachePath at
// the start of install and removed only on successful completion. Its
// presence after an unclean process exit forces a reinstall.
const incompleteMarker = "incomplete"

// backendMetaFile records the owning backend's Full identifier inside an
// install directory, so a later process can recover it without re-reading
// config.
const backendMetaFile = ".rtv-backend"

// TV (tool version) is a concrete resolved version of a BA: the unit the
// install orchestrator operates on.
type TV struct {
	BA      BA
	Version string
	Request Request
	Options map[string]string
	// Checksums maps a downloaded filename to "algo:hash", populated by the
	// verification pipeline.
	Checksums map[string]string
	// LockPlatforms records per-platform download metadata for lockfile
	// pinning, keyed by platform string (e.g. "linux-x64").
	LockPlatforms map[string]types.PlatformEntry

	InstallPath  string
	DownloadPath string
	CachePath    string

	// HostPath is set only for a "system" TV (§3/§4.4: the system
	// constraint "bypasses install entirely"): the directory containing the
	// host-installed binary that satisfies the request, discovered by
	// pkg/runtime instead of anything under InstallPath.
	HostPath string
}

// IsSystem reports whether this TV represents the "system" constraint: use
// whatever is already on the host rather than installing anything.
func (tv *TV) IsSystem() bool { return tv.Version == "system" }

// NewTV builds a TV for the given BA and resolved version, deriving the
// install/download/cache paths the way installs_dir(ba)/<version> implies.
func NewTV(ba BA, version string, req Request) *TV {
	return &TV{
		BA:            ba,
		Version:       version,
		Request:       req,
		Options:       map[string]string{},
		Checksums:     map[string]string{},
		LockPlatforms: map[string]types.PlatformEntry{},
		InstallPath:   filepath.Join(ba.InstallsDir, version),
		DownloadPath:  filepath.Join(ba.DownloadsDir, version),
		CachePath:     filepath.Join(ba.CacheDir, version),
	}
}

// IsInstalled implements the install_path-existence invariant: install_path
// must exist as a real directory or file (not a symlink pointing outside
// the installs tree), no incomplete marker may be present in cache_path,
// and install_path must not be a dangling symlink left over from a failed
// runtime-version switch.
func (tv *TV) IsInstalled() bool {
	if tv.IsSystem() {
		return tv.HostPath != ""
	}

	info, err := os.Lstat(tv.InstallPath)
	if err != nil {
		return false
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(tv.InstallPath)
		if err != nil {
			// Dangling symlink.
			return false
		}
		rel, err := filepath.Rel(tv.BA.InstallsDir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return false
		}
	}

	if hasIncompleteMarker(tv.CachePath) {
		return false
	}

	return true
}

func incompleteMarkerPath(cachePath string) string {
	return filepath.Join(cachePath, incompleteMarker)
}

func hasIncompleteMarker(cachePath string) bool {
	_, err := os.Stat(incompleteMarkerPath(cachePath))
	return err == nil
}

// writeIncompleteMarker creates cache_path and the empty incomplete
// sentinel inside it; this is the crash-recovery invariant described at
// the Pending->Locked transition.
func writeIncompleteMarker(cachePath string) error {
	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		return err
	}
	f, err := os.Create(incompleteMarkerPath(cachePath))
	if err != nil {
		return err
	}
	return f.Close()
}

func removeIncompleteMarker(cachePath string) error {
	err := os.Remove(incompleteMarkerPath(cachePath))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// createInstallDirs removes any stale contents of install/download/cache
// and recreates them empty, then writes the incomplete marker. Called at
// the Pending->Locked transition whenever a reinstall is actually needed.
func createInstallDirs(tv *TV) error {
	for _, dir := range []string{tv.InstallPath, tv.DownloadPath} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(tv.CachePath); err != nil {
		return err
	}
	return writeIncompleteMarker(tv.CachePath)
}

// writeBackendMeta records the owning backend's Full id inside InstallPath,
// done at the PostInstall->Complete transition.
func writeBackendMeta(tv *TV) error {
	return os.WriteFile(filepath.Join(tv.InstallPath, backendMetaFile), []byte(tv.BA.Full+"\n"), 0o644)
}
