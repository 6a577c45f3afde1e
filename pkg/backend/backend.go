// Package backend extends pkg/manager.PackageManager with the capability
// set the install orchestrator needs on top of version discovery and
// resolution: declared dependencies for scheduling, the bin paths and
// environment a toolset overlay should expose, and the filenames a version
// resolver should look for when a project pins a tool without a lockfile.
package backend

import (
	"os"

	"github.com/haldor-dev/rtv/pkg/manager"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Backend is the full capability set a package manager exposes to the
// install orchestrator. Every backend variant (github, gitlab, forgejo,
// url, s3, direct, golang, cargo, npm, maven, apache, aqua, ubi)
// implements it, usually by embedding Base and
// overriding only what differs from the manager.PackageManager default.
type Backend interface {
	manager.PackageManager

	// GetDependencies returns the registry short-names this backend requires
	// to be installed before it can run (e.g. cargo -> []string{"rust"}).
	// It is a property of the backend implementation, not of any one
	// package's configuration.
	GetDependencies() []string

	// ListBinPaths returns the absolute paths that should be prepended to
	// PATH when a toolset activates this package, relative to installPath.
	ListBinPaths(installPath string, pkg types.Package) []string

	// ExecEnv returns extra environment variables a toolset overlay should
	// set while this package is active (e.g. GOROOT, CARGO_HOME).
	ExecEnv(installPath string, pkg types.Package) map[string]string

	// IdiomaticFilenames lists the version-pin filenames this backend
	// recognizes in a project directory, e.g. ".nvmrc" for npm-backed
	// tools or ".ruby-version" for gem. Order is preference order.
	IdiomaticFilenames() []string

	// UninstallVersion removes everything a completed install placed under
	// installPath. Most backends never touch state outside installPath and
	// can rely on Base's directory-removal default; every backend in this
	// module, cargo and npm included, uses that default.
	UninstallVersion(installPath string, pkg types.Package) error
}

// LockInfoResolver is an optional hook: backends that need to record more
// than a URL/checksum pair in the lockfile (e.g. a GitHub tag and checksum
// filename) implement it.
type LockInfoResolver interface {
	ResolveLockInfo(tv any, target interface{}) (map[string]any, error)
}

// SecurityInfoProvider is an optional hook surfacing the verification
// schemes a backend supports, for `deps doctor`-style reporting.
type SecurityInfoProvider interface {
	SecurityInfo() SecurityInfo
}

// SecurityInfo describes which verification mechanisms a backend can apply.
type SecurityInfo struct {
	Checksum   bool
	Minisign   bool
	Cosign     bool
	SLSA       bool
	Provenance bool
}

// OutdatedInfoProvider is an optional hook for backends that can report a
// newer-version hint cheaper than a full DiscoverVersions call.
type OutdatedInfoProvider interface {
	OutdatedInfo(installedVersion string, pkg types.Package) (latest string, outdated bool, err error)
}

// Base implements Backend by embedding an existing manager.PackageManager
// and supplying no-op defaults for the new methods. Adapting an existing
// manager (github, gitlab, golang, maven, apache, url, direct) to Backend
// is then a matter of embedding Base and overriding only what the manager
// actually needs: most managers need ListBinPaths and IdiomaticFilenames,
// few need GetDependencies or ExecEnv.
type Base struct {
	manager.PackageManager
}

// NewBase wraps an existing PackageManager so it satisfies Backend.
func NewBase(pm manager.PackageManager) Base {
	return Base{PackageManager: pm}
}

// GetDependencies defaults to no dependencies.
func (Base) GetDependencies() []string { return nil }

// ListBinPaths defaults to the install path itself (flat single-binary
// layout, the common case for github/gitlab/url releases).
func (Base) ListBinPaths(installPath string, pkg types.Package) []string {
	return []string{installPath}
}

// ExecEnv defaults to no extra environment.
func (Base) ExecEnv(installPath string, pkg types.Package) map[string]string {
	return nil
}

// IdiomaticFilenames defaults to none.
func (Base) IdiomaticFilenames() []string { return nil }

// UninstallVersion defaults to removing installPath itself, which covers
// every backend that places the whole of an install (binaries, libs,
// plugin-downloaded assets) inside the directory the orchestrator manages.
func (Base) UninstallVersion(installPath string, pkg types.Package) error {
	return os.RemoveAll(installPath)
}

// Registry holds backend implementations keyed by their `full` identifier
// (e.g. "github", "cargo", "npm"), mirroring manager.Registry but over the
// richer Backend interface.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its Name().
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// Get retrieves a backend by its full identifier.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// List returns every registered backend identifier.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// ErrBackendNotFound is returned when a registry short-name resolves to a
// `full` identifier with no matching registered backend.
type ErrBackendNotFound struct {
	Backend string
}

func (e *ErrBackendNotFound) Error() string {
	return "backend not found: " + e.Backend
}

var globalRegistry = NewRegistry()

// Register adds a backend to the global registry.
func Register(b Backend) { globalRegistry.Register(b) }

// GetGlobalRegistry returns the global backend registry.
func GetGlobalRegistry() *Registry { return globalRegistry }
