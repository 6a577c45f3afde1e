// Package gitlab adapts pkg/manager/gitlab's GitLab release manager to the
// backend.Backend interface.
package gitlab

import (
	"os"

	"github.com/haldor-dev/rtv/pkg/backend"
	glmanager "github.com/haldor-dev/rtv/pkg/manager/gitlab"
)

// Backend wraps GitLabReleaseManager.
type Backend struct {
	backend.Base
}

// New creates the gitlab backend, picking up a token from GITLAB_TOKEN or
// CI_JOB_TOKEN the same way the underlying manager's CLI wiring does.
func New() *Backend {
	token := os.Getenv("GITLAB_TOKEN")
	source := "GITLAB_TOKEN"
	if token == "" {
		token = os.Getenv("CI_JOB_TOKEN")
		source = "CI_JOB_TOKEN"
	}
	return &Backend{Base: backend.NewBase(glmanager.NewGitLabReleaseManager(token, source))}
}

func (*Backend) IdiomaticFilenames() []string {
	return []string{".tool-versions"}
}

func init() {
	backend.Register(New())
}
