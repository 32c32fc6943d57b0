package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/imagepromote/pkg/cluster"
	"github.com/fluxcd/imagepromote/pkg/cluster/kubernetes"
	"github.com/fluxcd/imagepromote/pkg/config"
)

type fakeCluster struct {
	workload    cluster.Workload
	workloadErr error
	pods        []cluster.Pod
	service     cluster.Service
	serviceErr  error
	claims      []cluster.VolumeClaim
	usage       cluster.Usage
	usageErr    error
	selectors   []string
}

func (f *fakeCluster) Workload(ctx context.Context, namespace, name string) (cluster.Workload, error) {
	return f.workload, f.workloadErr
}

func (f *fakeCluster) Pods(ctx context.Context, namespace, selector string) ([]cluster.Pod, error) {
	f.selectors = append(f.selectors, selector)
	return f.pods, nil
}

func (f *fakeCluster) Service(ctx context.Context, namespace, name string) (cluster.Service, error) {
	return f.service, f.serviceErr
}

func (f *fakeCluster) VolumeClaims(ctx context.Context, namespace, release string) ([]cluster.VolumeClaim, error) {
	return f.claims, nil
}

func (f *fakeCluster) PodUsage(ctx context.Context, namespace, selector string) (cluster.Usage, error) {
	return f.usage, f.usageErr
}

func healthyCluster() *fakeCluster {
	return &fakeCluster{
		workload: cluster.Workload{
			Namespace: "prod",
			Name:      "app",
			Status:    cluster.StatusReady,
			Rollout:   cluster.RolloutStatus{Desired: 2, Updated: 2, Ready: 2, Available: 2},
			Selector:  "app=app",
		},
		pods: []cluster.Pod{
			{Name: "app-1", Phase: "Running", Ready: true},
			{Name: "app-2", Phase: "Running", Ready: true},
		},
		service: cluster.Service{Name: "app", ReadyEndpoints: 2},
		claims:  []cluster.VolumeClaim{{Name: "data-app-0", Phase: "Bound"}},
		usage:   cluster.Usage{Pods: 2, CPUMillis: 100, MemoryMiB: 128},
	}
}

func newChecker(t *testing.T, c Cluster, status int) (*Checker, func()) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(status)
	}))
	return NewChecker(c, "app", "prod", config.MonitorConfig{
		AppURL:        srv.URL,
		HealthPath:    "/health",
		ProbeTimeout:  time.Second,
		CPUCeiling:    800,
		MemoryCeiling: 1024,
	}), srv.Close
}

func statuses(s Snapshot) map[string]Status {
	m := map[string]Status{}
	for _, r := range s.Results {
		m[r.Name] = r.Status
	}
	return m
}

func TestAllChecksPass(t *testing.T) {
	fc := healthyCluster()
	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())

	assert.Equal(t, Healthy, s.Classification)
	assert.Equal(t, 6, s.Passed)
	assert.Equal(t, 6, s.Total)
	var names []string
	for _, r := range s.Results {
		names = append(names, r.Name)
	}
	assert.Equal(t, CheckNames, names)
	assert.Equal(t, []string{"app=app"}, fc.selectors)
}

func TestApplicationDown(t *testing.T) {
	c, done := newChecker(t, healthyCluster(), http.StatusServiceUnavailable)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	assert.Equal(t, Warning, s.Classification)
	assert.Equal(t, Failed, statuses(s)[CheckApplication])
	assert.Contains(t, s.Results[3].Message, "503")
}

func TestThreeFailing(t *testing.T) {
	fc := healthyCluster()
	fc.pods[1].Ready = false
	fc.service.ReadyEndpoints = 0
	fc.usage.MemoryMiB = 2048

	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	assert.Equal(t, Critical, s.Classification)
	assert.Equal(t, 3, s.Passed)
	got := statuses(s)
	assert.Equal(t, Failed, got[CheckPods])
	assert.Equal(t, Failed, got[CheckService])
	assert.Equal(t, Failed, got[CheckResources])
	failed, _ := s.Failed()
	assert.Equal(t, []string{CheckPods, CheckService, CheckResources}, failed)
}

func TestDeploymentMissingIsCritical(t *testing.T) {
	fc := healthyCluster()
	fc.workloadErr = kubernetes.ObjectMissingError("deployment/app", errors.Wrap(cluster.ErrNotFound, "gone"))

	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	assert.True(t, s.DeploymentMissing)
	assert.Equal(t, 5, s.Passed)
	assert.Equal(t, Critical, s.Classification)
	assert.Equal(t, []string{kubernetes.InstanceLabel + "=app"}, fc.selectors)
}

func TestDeploymentNotReady(t *testing.T) {
	fc := healthyCluster()
	fc.workload.Rollout.Ready = 1
	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	assert.Equal(t, Failed, statuses(s)[CheckDeployment])
	assert.False(t, s.DeploymentMissing)
}

func TestNoMetricsIsSkipped(t *testing.T) {
	fc := healthyCluster()
	fc.usageErr = kubernetes.ErrNoMetrics
	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	assert.Equal(t, OK, statuses(s)[CheckResources])
	assert.Equal(t, Healthy, s.Classification)
}

func TestUnboundClaim(t *testing.T) {
	fc := healthyCluster()
	fc.claims = append(fc.claims, cluster.VolumeClaim{Name: "cache", Phase: "Pending"})
	c, done := newChecker(t, fc, http.StatusOK)
	defer done()
	s := c.Evaluate(context.Background(), time.Now())
	require.Equal(t, Failed, statuses(s)[CheckStorage])
	assert.Contains(t, s.Results[5].Message, "cache (Pending)")
}

func TestApplicationURL(t *testing.T) {
	c := NewChecker(nil, "app", "prod", config.MonitorConfig{HealthPath: "healthz"})
	assert.Equal(t, "http://app.prod.svc.cluster.local/healthz", c.ApplicationURL())
	c.Config.AppURL = "https://app.example.com/"
	assert.Equal(t, "https://app.example.com/healthz", c.ApplicationURL())
}
