// Package ubi adapts pkg/manager/ubi to the backend.Backend interface.
package ubi

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	ubimanager "github.com/haldor-dev/rtv/pkg/manager/ubi"
)

// Backend wraps ubi.Manager.
type Backend struct {
	backend.Base
}

// New creates the ubi backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(ubimanager.NewManager())}
}

func init() {
	backend.Register(New())
}
