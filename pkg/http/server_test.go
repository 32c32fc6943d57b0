package http

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/imagepromote/pkg/health"
)

type fakeStatus struct {
	snapshot *health.Snapshot
	state    health.State
}

func (f fakeStatus) Last() (health.Snapshot, bool) {
	if f.snapshot == nil {
		return health.Snapshot{}, false
	}
	return *f.snapshot, true
}

func (f fakeStatus) State() health.State {
	return f.state
}

func get(t *testing.T, srv *httptest.Server, path, accept string) (*http.Response, string) {
	req, err := http.NewRequest("GET", srv.URL+path, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := ioutil.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewHandler(fakeStatus{}, NewRouter()))
	defer srv.Close()

	res, body := get(t, srv, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", body)

	res, body = get(t, srv, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "imagepromote_monitor_request_duration_seconds")
}

func TestHealthBeforeFirstSnapshot(t *testing.T) {
	srv := httptest.NewServer(NewHandler(fakeStatus{}, NewRouter()))
	defer srv.Close()

	res, body := get(t, srv, "/api/v1/health", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "not finished evaluating")
}

func TestHealthSnapshot(t *testing.T) {
	snapshot := &health.Snapshot{
		Time:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Release:   "app",
		Namespace: "prod",
		Results: []health.Result{
			{Name: health.CheckDeployment, Status: health.Failed, Message: "not found"},
		},
		Passed:            0,
		Total:             1,
		Classification:    health.Critical,
		DeploymentMissing: true,
		Consecutive:       4,
	}
	srv := httptest.NewServer(NewHandler(fakeStatus{snapshot: snapshot}, NewRouter()))
	defer srv.Close()

	res, body := get(t, srv, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")
	var got health.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, *snapshot, got)

	res, body = get(t, srv, "/api/v1/health", "application/yaml")
	assert.Contains(t, res.Header.Get("Content-Type"), "application/yaml")
	assert.Contains(t, body, "classification: critical")
	assert.Contains(t, body, "consecutiveCritical: 4")
}

func TestState(t *testing.T) {
	status := fakeStatus{state: health.State{Consecutive: 2, Threshold: 3, Cooldown: 30 * time.Minute}}
	srv := httptest.NewServer(NewHandler(status, NewRouter()))
	defer srv.Close()

	res, body := get(t, srv, "/api/v1/state", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"consecutiveCritical":2`)
	assert.Contains(t, body, `"alertCooldown":"30m0s"`)
}

func TestNotFound(t *testing.T) {
	srv := httptest.NewServer(NewHandler(fakeStatus{}, NewRouter()))
	defer srv.Close()

	res, body := get(t, srv, "/v6/services", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "/v6/services")

	res, body = get(t, srv, "/v6/services", "application/json")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, `"type":"missing"`)
}
