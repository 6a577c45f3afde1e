// Package apache adapts pkg/manager/apache to the backend.Backend interface.
package apache

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	apmanager "github.com/haldor-dev/rtv/pkg/manager/apache"
)

// Backend wraps ApacheManager.
type Backend struct {
	backend.Base
}

// New creates the apache backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(apmanager.NewApacheManager())}
}

func init() {
	backend.Register(New())
}
