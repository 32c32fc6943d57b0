// Package registry moves images between container registries. The
// Client interface is what a promotion needs; the Docker driver
// does it through a Docker Engine, the Remote driver talks to the
// registries directly.
package registry

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
)

// Client is the set of registry operations a promotion performs.
type Client interface {
	// CheckAvailable returns an error if the driver cannot work at
	// all, e.g., the Docker daemon isn't running.
	CheckAvailable(ctx context.Context) error
	// Login authenticates against a registry host. Credentials are
	// kept in memory for subsequent pulls and pushes to that host.
	Login(ctx context.Context, registry string, creds credentials.Basic) error
	Pull(ctx context.Context, ref image.Ref) error
	// Tag makes the image already pulled as src available as dst.
	Tag(ctx context.Context, src, dst image.Ref) error
	Push(ctx context.Context, ref image.Ref) error
	// Remove deletes the local copy of ref. It does not touch any
	// remote registry.
	Remove(ctx context.Context, ref image.Ref) error
}

var (
	ErrUnavailable = errors.New("registry client unavailable")
	ErrNotPulled   = errors.New("image has not been pulled")
)
