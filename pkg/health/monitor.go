package health

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/imagepromote/pkg/audit"
	"github.com/fluxcd/imagepromote/pkg/config"
	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
	"github.com/fluxcd/imagepromote/pkg/notify"
)

// Evaluator produces snapshots; *Checker is the real one.
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) Snapshot
}

// Monitor evaluates a release's health on an interval and alerts
// when it has been critical for too long.
type Monitor struct {
	Checks   Evaluator
	Alerts   notify.Sink
	Audit    audit.Sink
	Logger   log.Logger
	Interval time.Duration
	Now      func() time.Time

	mu    sync.Mutex
	state State
	last  *Snapshot
}

func NewMonitor(checks Evaluator, cfg config.MonitorConfig, alerts notify.Sink, auditSink audit.Sink, logger log.Logger) *Monitor {
	return &Monitor{
		Checks:   checks,
		Alerts:   alerts,
		Audit:    auditSink,
		Logger:   logger,
		Interval: cfg.Interval,
		Now:      time.Now,
		state: State{
			Threshold: cfg.AlertThreshold,
			Cooldown:  cfg.AlertCooldown,
		},
	}
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Monitor) evaluate(ctx context.Context) Snapshot {
	start := time.Now()
	s := m.Checks.Evaluate(ctx, m.now())
	evaluationDuration.Observe(time.Since(start).Seconds())
	for _, r := range s.Results {
		m.Logger.Log("check", r.Name, "status", r.Status, "message", r.Message)
	}
	return s
}

// Report evaluates every check once. The monitor's state is left as
// it is, apart from remembering the snapshot.
func (m *Monitor) Report(ctx context.Context) Snapshot {
	s := m.evaluate(ctx)
	m.mu.Lock()
	s.Consecutive = m.state.Consecutive
	m.last = &s
	m.mu.Unlock()
	m.record(ctx, s)
	return s
}

// Tick evaluates every check, folds the outcome into the monitor's
// state and raises an alert if one is due. Failing checks are state,
// not errors; Tick has nothing to return but the snapshot.
func (m *Monitor) Tick(ctx context.Context) Snapshot {
	s := m.evaluate(ctx)

	m.mu.Lock()
	s.Alerted = m.state.Observe(s.Classification, s.Time)
	s.Consecutive = m.state.Consecutive
	m.last = &s
	m.mu.Unlock()

	observeSnapshot(s)
	consecutiveGauge.Set(float64(s.Consecutive))
	m.Logger.Log("classification", s.Classification, "passed", s.Passed, "total", s.Total, "consecutive", s.Consecutive)

	if s.Alerted {
		m.alert(ctx, s)
	}
	m.record(ctx, s)
	return s
}

func (m *Monitor) alert(ctx context.Context, s Snapshot) {
	failed, messages := s.Failed()
	err := m.Alerts.Alert(ctx, notify.Alert{
		Release:        s.Release,
		Namespace:      s.Namespace,
		Classification: string(s.Classification),
		Consecutive:    s.Consecutive,
		Failed:         failed,
		Messages:       messages,
		Time:           s.Time,
	})
	alertsTotal.With(promotemetrics.LabelSuccess, strconv.FormatBool(err == nil)).Add(1)
	if err != nil {
		m.Logger.Log("alert", "failed", "err", err)
	}
}

func (m *Monitor) record(ctx context.Context, s Snapshot) {
	if m.Audit == nil {
		return
	}
	if err := m.Audit.Record(ctx, audit.Event{Kind: audit.KindHealth, Time: s.Time, Data: s}); err != nil {
		m.Logger.Log("audit", "failed", "err", err)
	}
}

// Last returns the most recent snapshot, if there has been one.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Snapshot{}, false
	}
	return *m.last, true
}

// State returns a copy of the monitor's state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run ticks straight away and then every interval, until ctx is
// done. A tick already under way when ctx is cancelled runs to
// completion; each check is bounded by its own timeout.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = config.DefaultMonitorInterval
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	m.Logger.Log("interval", interval.String(), "threshold", m.state.Threshold, "cooldown", m.state.Cooldown.String())
	for {
		select {
		case <-ctx.Done():
			m.Logger.Log("stopping", "true")
			return
		case <-timer.C:
			m.Tick(context.Background())
			timer.Reset(interval)
		}
	}
}
