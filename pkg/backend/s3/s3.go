// Package s3 adapts pkg/manager/s3 to the backend.Backend interface.
package s3

import (
	"context"
	"fmt"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/manager"
	s3manager "github.com/haldor-dev/rtv/pkg/manager/s3"
)

// Backend wraps S3Manager. Construction can fail (loading AWS config), so
// New returns an error instead of following the other backends' panic-free
// constructor convention.
type Backend struct {
	backend.Base
}

// New creates the s3 backend.
func New(ctx context.Context) (*Backend, error) {
	mgr, err := s3manager.NewS3Manager(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating s3 backend: %w", err)
	}
	return &Backend{Base: backend.NewBase(mgr)}, nil
}

// Register creates and registers the s3 backend against the global
// registry; unlike the other backends it can't use an init() func because
// construction needs a context and can fail.
func Register(ctx context.Context) error {
	b, err := New(ctx)
	if err != nil {
		return err
	}
	backend.Register(b)
	return nil
}

var _ manager.PackageManager = (*s3manager.S3Manager)(nil)
