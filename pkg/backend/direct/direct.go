// Package direct adapts pkg/manager/direct to the backend.Backend interface.
package direct

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	directmanager "github.com/haldor-dev/rtv/pkg/manager/direct"
)

// Backend wraps DirectURLManager.
type Backend struct {
	backend.Base
}

// New creates the direct backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(directmanager.NewDirectURLManager())}
}

func init() {
	backend.Register(New())
}
