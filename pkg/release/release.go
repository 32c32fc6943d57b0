// Package release applies an image tag to a cluster through a Helm
// chart release, and checks that it rolled out.
package release

import (
	"context"
	"time"
)

// Client is the set of release operations a promotion performs.
type Client interface {
	// CheckAvailable returns an error if the release tool cannot be
	// used at all.
	CheckAvailable(ctx context.Context) error
	// CheckClusterAccess returns an error if the cluster cannot be
	// reached with the credentials at hand.
	CheckClusterAccess(ctx context.Context) error
	// CheckChartPath returns an error if path is not a loadable chart.
	CheckChartPath(path string) error
	// Deploy installs or upgrades release from chart, setting the
	// image tag. It is idempotent, and atomic: if the release does
	// not become ready within timeout, it is returned to its previous
	// state.
	Deploy(ctx context.Context, chart, release, namespace, tag string, timeout time.Duration) error
	// Rollback returns release to revision, or to the revision before
	// the current one if revision is 0.
	Rollback(ctx context.Context, release string, revision int) error
	// RolloutStatus waits until the release's workload has rolled
	// out, for at most timeout.
	RolloutStatus(ctx context.Context, release, namespace string, timeout time.Duration) error
}
