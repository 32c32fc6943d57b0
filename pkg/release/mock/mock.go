package mock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/fluxcd/imagepromote/pkg/release"
)

const (
	CheckAvailable     = "check"
	CheckClusterAccess = "cluster"
	CheckChartPath     = "chart"
	Deploy             = "deploy"
	Rollback           = "rollback"
	RolloutStatus      = "rollout"
)

type Call struct {
	Op   string
	Args []string
}

// Client records every call made to it. Errors queued with Fail are
// returned by successive calls to that operation.
type Client struct {
	mu     sync.Mutex
	calls  []Call
	errors map[string][]error
}

func (m *Client) Fail(op string, errs ...error) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string][]error{}
	}
	m.errors[op] = append(m.errors[op], errs...)
	return m
}

func (m *Client) record(op string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Args: args})
	if q := m.errors[op]; len(q) > 0 {
		m.errors[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *Client) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Client) Ops() []string {
	var ops []string
	for _, c := range m.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

func (m *Client) Count(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Client) CheckAvailable(ctx context.Context) error {
	return m.record(CheckAvailable)
}

func (m *Client) CheckClusterAccess(ctx context.Context) error {
	return m.record(CheckClusterAccess)
}

func (m *Client) CheckChartPath(path string) error {
	return m.record(CheckChartPath, path)
}

func (m *Client) Deploy(ctx context.Context, chart, rel, namespace, tag string, timeout time.Duration) error {
	return m.record(Deploy, chart, rel, namespace, tag, timeout.String())
}

func (m *Client) Rollback(ctx context.Context, rel string, revision int) error {
	return m.record(Rollback, rel, strconv.Itoa(revision))
}

func (m *Client) RolloutStatus(ctx context.Context, rel, namespace string, timeout time.Duration) error {
	return m.record(RolloutStatus, rel, namespace, timeout.String())
}

var _ release.Client = &Client{}
