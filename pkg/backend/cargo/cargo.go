// Package cargo adapts pkg/manager/cargo to the backend.Backend interface,
// declaring the rust toolchain as a dependency the orchestrator must
// install first.
package cargo

import (
	"path/filepath"

	"github.com/haldor-dev/rtv/pkg/backend"
	cargomanager "github.com/haldor-dev/rtv/pkg/manager/cargo"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Backend wraps CargoManager.
type Backend struct {
	backend.Base
}

// New creates the cargo backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(cargomanager.NewCargoManager())}
}

// GetDependencies declares the rust core plugin as a prerequisite: cargo
// itself ships with rustup-managed toolchains.
func (*Backend) GetDependencies() []string {
	return []string{"rust"}
}

func (*Backend) ListBinPaths(installPath string, pkg types.Package) []string {
	return []string{filepath.Join(installPath, "bin")}
}

func (*Backend) ExecEnv(installPath string, pkg types.Package) map[string]string {
	return map[string]string{"CARGO_INSTALL_ROOT": installPath}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{"rust-toolchain.toml", "rust-toolchain"}
}

func init() {
	backend.Register(New())
}
