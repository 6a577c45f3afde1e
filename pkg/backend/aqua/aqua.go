// Package aqua adapts pkg/manager/aqua to the backend.Backend interface.
package aqua

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	aquamanager "github.com/haldor-dev/rtv/pkg/manager/aqua"
)

// Backend wraps aqua.Manager.
type Backend struct {
	backend.Base
}

// New creates the aqua backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(aquamanager.NewManager())}
}

func init() {
	backend.Register(New())
}
