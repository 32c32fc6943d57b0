package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/imagepromote/pkg/audit"
	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/notify"
)

// scripted hands out classifications in turn, repeating the last.
type scripted struct {
	mu     sync.Mutex
	passes []int
	calls  int
}

func (s *scripted) Evaluate(ctx context.Context, now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.passes) {
		i = len(s.passes) - 1
	}
	s.calls++
	rs := results(s.passes[i])
	passed := 0
	for _, r := range rs {
		if r.Passed() {
			passed++
		}
	}
	return Snapshot{
		Time:           now,
		Release:        "app",
		Namespace:      "prod",
		Results:        rs,
		Passed:         passed,
		Total:          len(rs),
		Classification: Classify(rs, false),
	}
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (a *alertRecorder) Alert(ctx context.Context, alert notify.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

type auditRecorder struct {
	events []audit.Event
}

func (a *auditRecorder) Record(ctx context.Context, e audit.Event) error {
	a.events = append(a.events, e)
	return nil
}

func newMonitor(passes ...int) (*Monitor, *alertRecorder, *auditRecorder, *time.Time) {
	alerts := &alertRecorder{}
	records := &auditRecorder{}
	m := NewMonitor(&scripted{passes: passes}, config.MonitorConfig{
		Interval:       time.Minute,
		AlertThreshold: 3,
		AlertCooldown:  1800 * time.Second,
	}, alerts, records, log.NewNopLogger())
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	return m, alerts, records, &now
}

func TestTickTracksState(t *testing.T) {
	m, _, records, _ := newMonitor(6, 5, 3, 5, 3, 6)

	for _, want := range []struct {
		class       Classification
		consecutive int
	}{
		{Healthy, 0},
		{Warning, 0},
		{Critical, 1},
		{Warning, 1},
		{Critical, 2},
		{Healthy, 0},
	} {
		s := m.Tick(context.Background())
		assert.Equal(t, want.class, s.Classification)
		assert.Equal(t, want.consecutive, s.Consecutive)
		assert.Equal(t, want.consecutive, m.State().Consecutive)
	}
	require.Len(t, records.events, 6)
	assert.Equal(t, audit.KindHealth, records.events[0].Kind)
}

func TestTickAlertsOncePerCooldown(t *testing.T) {
	m, alerts, _, now := newMonitor(2)

	m.Tick(context.Background())
	m.Tick(context.Background())
	assert.Empty(t, alerts.alerts)

	s := m.Tick(context.Background())
	assert.True(t, s.Alerted)
	require.Len(t, alerts.alerts, 1)
	a := alerts.alerts[0]
	assert.Equal(t, "critical", a.Classification)
	assert.Equal(t, 3, a.Consecutive)
	assert.Equal(t, []string{CheckService, CheckApplication, CheckResources, CheckStorage}, a.Failed)

	*now = now.Add(10 * time.Minute)
	assert.False(t, m.Tick(context.Background()).Alerted)
	assert.Len(t, alerts.alerts, 1)

	*now = now.Add(30 * time.Minute)
	assert.True(t, m.Tick(context.Background()).Alerted)
	assert.Len(t, alerts.alerts, 2)
}

func TestReportLeavesStateAlone(t *testing.T) {
	m, alerts, records, _ := newMonitor(0)
	for i := 0; i < 5; i++ {
		s := m.Report(context.Background())
		assert.Equal(t, Critical, s.Classification)
	}
	assert.Equal(t, 0, m.State().Consecutive)
	assert.Empty(t, alerts.alerts)
	assert.Len(t, records.events, 5)

	last, ok := m.Last()
	assert.True(t, ok)
	assert.Equal(t, Critical, last.Classification)
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _, _ := newMonitor(6)
	m.Interval = 10 * time.Millisecond
	checks := m.Checks.(*scripted)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for checks.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("monitor did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	_, ok := m.Last()
	assert.True(t, ok)
}

// blocking holds each evaluation until released.
type blocking struct {
	scripted
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blocking) Evaluate(ctx context.Context, now time.Time) Snapshot {
	b.started <- struct{}{}
	<-b.release
	b.ctxErr = ctx.Err()
	return b.scripted.Evaluate(ctx, now)
}

func TestRunFinishesTickInFlight(t *testing.T) {
	m, _, records, _ := newMonitor()
	checks := &blocking{
		scripted: scripted{passes: []int{6}},
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m.Checks = checks

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-checks.started:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not tick")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("monitor stopped before its tick finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(checks.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	assert.NoError(t, checks.ctxErr)
	require.Len(t, records.events, 1)
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, Healthy, last.Classification)
}
