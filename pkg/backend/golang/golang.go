// Package golang adapts pkg/manager/golang's `go install` manager to the
// backend.Backend interface.
package golang

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	gomanager "github.com/haldor-dev/rtv/pkg/manager/golang"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Backend wraps GoManager. Go-built tools need GOBIN on PATH, which is the
// install path itself since Install() already sets GOBIN=opts.BinDir.
type Backend struct {
	backend.Base
}

// New creates the go backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(gomanager.NewGoManager())}
}

func (*Backend) ListBinPaths(installPath string, pkg types.Package) []string {
	return []string{installPath}
}

func (*Backend) ExecEnv(installPath string, pkg types.Package) map[string]string {
	return map[string]string{"GOBIN": installPath}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{"go.mod", ".go-version"}
}

func init() {
	backend.Register(New())
}
