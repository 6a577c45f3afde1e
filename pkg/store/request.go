package store

import "github.com/haldor-dev/rtv/pkg/types"

// Request is a user's desire for a version of a BA: the "TR" (tool
// request) of the data model, kept distinct from the resolved TV so a
// symbolic constraint like "latest" or "lts/hydrogen" can be recorded
// alongside the concrete version it resolved to.
type Request struct {
	BA BA
	// Constraint is the raw version constraint as written by the user:
	// exact ("1.2.3"), prefix ("1.2"), symbolic ("latest", "lts", "stable",
	// "nightly"), git ref ("ref:<sha>", "branch:<name>", "tag:<name>"),
	// sub ("sub-1"), path ("path:/abs/dir"), or "system".
	Constraint string
	// Source records where the request came from: a config file path, an
	// env var name, or "cli".
	Source string
	// Options is a name->value mapping of backend-specific knobs, e.g.
	// "bin", "features", "url", "checksum".
	Options map[string]string
	// LockFile, when set, is consulted before any symlink or remote lookup:
	// an entry whose platform matches the requested platform wins outright,
	// pinning the request to the version it was locked at.
	LockFile *types.LockFile
}
