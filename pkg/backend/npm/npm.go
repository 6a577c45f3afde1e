// Package npm adapts pkg/manager/npm to the backend.Backend interface,
// declaring node as a dependency the orchestrator must install first.
package npm

import (
	"path/filepath"

	"github.com/haldor-dev/rtv/pkg/backend"
	npmmanager "github.com/haldor-dev/rtv/pkg/manager/npm"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Backend wraps NpmManager.
type Backend struct {
	backend.Base
}

// New creates the npm backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(npmmanager.NewNpmManager())}
}

func (*Backend) GetDependencies() []string {
	return []string{"node"}
}

func (*Backend) ListBinPaths(installPath string, pkg types.Package) []string {
	return []string{filepath.Join(installPath, "bin")}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{".nvmrc", ".node-version"}
}

func init() {
	backend.Register(New())
}
