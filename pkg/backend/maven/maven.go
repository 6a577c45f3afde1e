// Package maven adapts pkg/manager/maven to the backend.Backend interface.
package maven

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	mvmanager "github.com/haldor-dev/rtv/pkg/manager/maven"
)

// Backend wraps MavenManager.
type Backend struct {
	backend.Base
}

// New creates the maven backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(mvmanager.NewMavenManager())}
}

func init() {
	backend.Register(New())
}
