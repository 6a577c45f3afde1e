// Package store implements the content-addressed, multi-version install
// store the teacher's flat bin_dir installer doesn't have: a per-backend,
// per-version directory layout with crash-recovery markers, cross-process
// locking, and a dependency-ordered install scheduler.
package store

import (
	"path/filepath"
	"regexp"
	"strings"
)

// BA (backend arg) identifies one backend instance for one short tool name.
// Two BAs are equal iff their Full is equal; Full is the stable identifier
// persisted into .rtv-backend and used to derive on-disk paths.
type BA struct {
	// Short is the user-facing name, e.g. "node".
	Short string
	// Full is the canonical "<backend>:<tool>" form, e.g. "cargo:eza".
	Full string
	// BackendType is the registered backend identifier (Name()) that owns
	// this BA, e.g. "cargo", "github".
	BackendType string
	// CacheDir holds the incomplete marker and any per-install scratch data.
	CacheDir string
	// InstallsDir is the parent of every installed version directory for
	// this BA: InstallsDir/<version> is a TV's InstallPath.
	InstallsDir string
	// DownloadsDir holds in-flight and cached download artifacts, shared
	// across versions of the same BA (filenames embed the version).
	DownloadsDir string
}

var kebabNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// kebab turns a "backend:tool" identifier into a filesystem-safe directory
// name, e.g. "github:cli/cli" -> "github-cli-cli".
func kebab(s string) string {
	s = strings.ToLower(s)
	s = kebabNonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NewBA derives a BA's full identifier and filesystem paths from a short
// name and the backend type that resolved it, rooted at dataDir (typically
// $XDG_DATA_HOME/rtv or its equivalent).
func NewBA(short, backendType, dataDir string) BA {
	full := backendType + ":" + short
	dir := kebab(full)
	return BA{
		Short:        short,
		Full:         full,
		BackendType:  backendType,
		CacheDir:     filepath.Join(dataDir, "cache", dir),
		InstallsDir:  filepath.Join(dataDir, "installs", dir),
		DownloadsDir: filepath.Join(dataDir, "downloads", dir),
	}
}

// Equal reports whether two BAs refer to the same backend instance.
func (ba BA) Equal(other BA) bool { return ba.Full == other.Full }
