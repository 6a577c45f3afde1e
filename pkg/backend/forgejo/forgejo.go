// Package forgejo adapts pkg/manager/forgejo to the backend.Backend interface.
package forgejo

import (
	"os"

	"github.com/haldor-dev/rtv/pkg/backend"
	fjmanager "github.com/haldor-dev/rtv/pkg/manager/forgejo"
)

// Backend wraps forgejo.ReleaseManager.
type Backend struct {
	backend.Base
}

// New creates the forgejo backend, picking up a token from FORGEJO_TOKEN.
func New() *Backend {
	return &Backend{Base: backend.NewBase(fjmanager.NewReleaseManager(os.Getenv("FORGEJO_TOKEN")))}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{".tool-versions"}
}

func init() {
	backend.Register(New())
}
