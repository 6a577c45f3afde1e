// Package runtime resolves the "system" tool-request constraint (spec §3,
// §4.4: "system bypasses install entirely"): given a package definition, it
// searches PATH for a binary that could already satisfy it and reports the
// version that binary reports, instead of running any part of the install
// pipeline.
//
// This supersedes the teacher's pkg/runtime, which detected a fixed set of
// scripting-language interpreters (java/node/python/powershell) for its own
// task-runner's "run this script with an appropriate interpreter" feature -
// a capability out of scope here (§1 Non-goals: no task runner). What is
// worth keeping is the shape of that detection: search PATH for binary-name
// candidates, run a version command, parse the result, cache it. This
// package generalizes that to any backend-configured tool via
// types.Package's own PreInstalled/VersionCommand/VersionRegex fields
// instead of one hardcoded Go file per language, and delegates the actual
// "run it and parse the version" step to version.GetInstalledVersionWithMode
// rather than re-implementing it.
package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky/task"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/version"
)

// HostInstall describes a tool found already installed on the host.
type HostInstall struct {
	// Path is the absolute path to the binary that was found on PATH.
	Path string
	// Version is what the binary's own version command reported.
	Version string
}

// Detect searches PATH for any of a package's candidate binary names and
// returns the first one found along with its reported version. Candidates
// are, in order: pkg.BinaryName, the short tool name itself, and
// pkg.PreInstalled. A candidate that exists on PATH but whose version
// command fails is skipped rather than treated as fatal, since a later
// candidate (or none) may still resolve.
func Detect(t *task.Task, short string, pkg types.Package) (*HostInstall, error) {
	for _, name := range candidates(short, pkg) {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		path, err = filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}

		v, err := version.GetInstalledVersionWithMode(t, path, pkg.VersionCommand, pkg.VersionRegex, "")
		if err != nil {
			if t != nil {
				t.V(4).Infof("found %s on PATH at %s but could not determine its version: %v", name, path, err)
			}
			continue
		}

		return &HostInstall{Path: path, Version: v}, nil
	}

	return nil, fmt.Errorf("no host installation of %s found on PATH (searched: %s)", short, strings.Join(candidates(short, pkg), ", "))
}

// candidates lists binary names worth searching PATH for, short name and
// BinaryName first since they are the most specific, deduplicated against
// PreInstalled's looser aliases (e.g. "python" also accepting "python3").
func candidates(short string, pkg types.Package) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	add(pkg.BinaryName)
	add(short)
	for _, name := range pkg.PreInstalled {
		add(name)
	}
	return out
}

// exists reports whether path refers to a regular, executable file -
// exposed for callers that already have a resolved path and want to
// re-validate a cached one without going through exec.LookPath again.
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
