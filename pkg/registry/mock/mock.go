package mock

import (
	"context"
	"sync"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
	"github.com/fluxcd/imagepromote/pkg/registry"
)

const (
	CheckAvailable = "check"
	Login          = "login"
	Pull           = "pull"
	Tag            = "tag"
	Push           = "push"
	Remove         = "remove"
)

// Call records one method call, with its arguments rendered as
// strings. Passwords are never recorded.
type Call struct {
	Op   string
	Args []string
}

// Client records every call made to it. Errors queued for an
// operation with Fail are returned by successive calls to it; once
// the queue is empty, calls succeed.
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

// Ops returns just the operation names, in the order called.
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

func (m *Client) Login(ctx context.Context, registry string, creds credentials.Basic) error {
	return m.record(Login, registry, creds.Username)
}

func (m *Client) Pull(ctx context.Context, ref image.Ref) error {
	return m.record(Pull, ref.String())
}

func (m *Client) Tag(ctx context.Context, src, dst image.Ref) error {
	return m.record(Tag, src.String(), dst.String())
}

func (m *Client) Push(ctx context.Context, ref image.Ref) error {
	return m.record(Push, ref.String())
}

func (m *Client) Remove(ctx context.Context, ref image.Ref) error {
	return m.record(Remove, ref.String())
}

var _ registry.Client = &Client{}
