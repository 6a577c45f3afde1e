// Package url adapts pkg/manager/url (the http backend) to the
// backend.Backend interface.
package url

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	urlmanager "github.com/haldor-dev/rtv/pkg/manager/url"
)

// Backend wraps URLManager.
type Backend struct {
	backend.Base
}

// New creates the http/url backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(urlmanager.NewURLManager())}
}

func init() {
	backend.Register(New())
}
