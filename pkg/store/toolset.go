package store

import (
	"os"
	"strings"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Toolset is the (PATH prefix, env map) overlay a child process should be
// launched with once a set of TVs is active, per the "Environment variables
// produced" table: each installed TV contributes bin paths and extra env
// from its backend's ListBinPaths/ExecEnv.
type Toolset struct {
	// BinPaths are prepended to PATH, most-recently-activated first.
	BinPaths []string
	// Env holds extra environment variables contributed by active TVs.
	// Later entries win on key collision.
	Env map[string]string
}

// ProjectToolset merges ListBinPaths/ExecEnv for every given (TV, Backend,
// Package) triple into a single overlay. Entries for TVs that are not
// actually installed are skipped.
func ProjectToolset(entries []ToolsetEntry) Toolset {
	ts := Toolset{Env: map[string]string{}}
	for _, e := range entries {
		if !e.TV.IsInstalled() {
			continue
		}
		if e.TV.IsSystem() {
			// The system constraint contributes whatever directory PATH
			// already resolved the tool from; ListBinPaths/ExecEnv assume an
			// rtv-managed install layout that was never created here.
			ts.BinPaths = append(ts.BinPaths, e.TV.HostPath)
			continue
		}
		ts.BinPaths = append(ts.BinPaths, e.Backend.ListBinPaths(e.TV.InstallPath, e.Package)...)
		for k, v := range e.Backend.ExecEnv(e.TV.InstallPath, e.Package) {
			ts.Env[k] = v
		}
	}
	return ts
}

// ToolsetEntry pairs a resolved TV with the backend and package that
// installed it, the inputs ListBinPaths/ExecEnv need.
type ToolsetEntry struct {
	TV      *TV
	Backend backend.Backend
	Package types.Package
}

// Apply merges the toolset into a base environment (as a "KEY=VALUE" slice,
// e.g. os.Environ()), prepending BinPaths to PATH and overlaying Env.
func (ts Toolset) Apply(base []string) []string {
	env := map[string]string{}
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	path := env["PATH"]
	for i := len(ts.BinPaths) - 1; i >= 0; i-- {
		p := ts.BinPaths[i]
		if path == "" {
			path = p
		} else {
			path = p + string(os.PathListSeparator) + path
		}
	}
	env["PATH"] = path

	for k, v := range ts.Env {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
