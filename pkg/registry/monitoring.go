package registry

// Monitoring middleware for registry clients

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
)

const (
	OperationLogin = "login"
	OperationPull  = "pull"
	OperationTag   = "tag"
	OperationPush  = "push"
	OperationRm    = "remove"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: promotemetrics.Namespace,
	Subsystem: "registry",
	Name:      "request_duration_seconds",
	Help:      "Duration of registry operations, in seconds.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
}, []string{promotemetrics.LabelOperation, promotemetrics.LabelSuccess})

type instrumentedClient struct {
	next Client
}

// NewInstrumentedClient records the duration and outcome of every
// operation except CheckAvailable.
func NewInstrumentedClient(next Client) Client {
	return &instrumentedClient{next: next}
}

func observe(op string, start time.Time, err error) {
	requestDuration.With(
		promotemetrics.LabelOperation, op,
		promotemetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
}

func (m *instrumentedClient) CheckAvailable(ctx context.Context) error {
	return m.next.CheckAvailable(ctx)
}

func (m *instrumentedClient) Login(ctx context.Context, registry string, creds credentials.Basic) (err error) {
	defer func(start time.Time) { observe(OperationLogin, start, err) }(time.Now())
	return m.next.Login(ctx, registry, creds)
}

func (m *instrumentedClient) Pull(ctx context.Context, ref image.Ref) (err error) {
	defer func(start time.Time) { observe(OperationPull, start, err) }(time.Now())
	return m.next.Pull(ctx, ref)
}

func (m *instrumentedClient) Tag(ctx context.Context, src, dst image.Ref) (err error) {
	defer func(start time.Time) { observe(OperationTag, start, err) }(time.Now())
	return m.next.Tag(ctx, src, dst)
}

func (m *instrumentedClient) Push(ctx context.Context, ref image.Ref) (err error) {
	defer func(start time.Time) { observe(OperationPush, start, err) }(time.Now())
	return m.next.Push(ctx, ref)
}

func (m *instrumentedClient) Remove(ctx context.Context, ref image.Ref) (err error) {
	defer func(start time.Time) { observe(OperationRm, start, err) }(time.Now())
	return m.next.Remove(ctx, ref)
}
