// Package github adapts pkg/manager/github's GitHub release manager to the
// backend.Backend interface.
package github

import (
	"github.com/haldor-dev/rtv/pkg/backend"
	ghmanager "github.com/haldor-dev/rtv/pkg/manager/github"
)

// Backend wraps GitHubReleaseManager with toolset and filename metadata.
type Backend struct {
	backend.Base
}

// New creates the github backend.
func New() *Backend {
	return &Backend{Base: backend.NewBase(ghmanager.NewGitHubReleaseManager())}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{".tool-versions"}
}

func init() {
	backend.Register(New())
}
