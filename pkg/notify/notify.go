// Package notify delivers health alerts to people.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// Alert is raised by the health monitor when a release has been
// critical for long enough.
type Alert struct {
	Release        string
	Namespace      string
	Classification string
	// Consecutive critical evaluations so far.
	Consecutive int
	// Failed names the checks that did not pass.
	Failed []string
	// Messages holds the failure message of each failed check, in
	// the same order.
	Messages []string
	Time     time.Time
}

// Sink is somewhere alerts go.
type Sink interface {
	Alert(ctx context.Context, a Alert) error
}

// Log writes alerts to a logger.
type Log struct {
	Logger log.Logger
}

func (l Log) Alert(ctx context.Context, a Alert) error {
	return l.Logger.Log(
		"alert", a.Classification,
		"release", a.Namespace+"/"+a.Release,
		"consecutive", a.Consecutive,
		"failed", strings.Join(a.Failed, ","),
	)
}

// Multi delivers to every sink, returning the first error after
// trying them all.
type Multi []Sink

func (m Multi) Alert(ctx context.Context, a Alert) error {
	var first error
	for _, s := range m {
		if err := s.Alert(ctx, a); err != nil && first == nil {
			first = errors.Wrapf(err, "delivering alert via %T", s)
		}
	}
	return first
}
