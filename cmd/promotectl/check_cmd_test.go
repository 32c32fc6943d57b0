package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/imagepromote/pkg/cluster/kubernetes"
	"github.com/fluxcd/imagepromote/pkg/health"
)

func TestCheckMissingReleaseIsCritical(t *testing.T) {
	app := okServer()
	defer app.Close()
	path, cleanup := writeConfig(t, exampleConfig+"APP_URL="+app.URL+"\n")
	defer cleanup()

	tr := newTestRoot()
	err := tr.run("check", "--config", path, "--image", "app")
	require.Error(t, err)
	exit, ok := err.(exitError)
	require.True(t, ok, "expected exit error, got %v", err)
	assert.Equal(t, 2, exit.code)
	assert.Contains(t, tr.stdout.String(), "prod/app: critical")
	assert.Contains(t, tr.stdout.String(), "deployment")
}

func TestCheckWithoutConfigIsUnknown(t *testing.T) {
	tr := newTestRoot()
	err := tr.run("check", "--config", "/nonexistent/deployment.conf")
	require.Error(t, err)
	exit, ok := err.(exitError)
	require.True(t, ok, "expected exit error, got %v", err)
	assert.Equal(t, exitUnknown, exit.code)
	assert.Contains(t, tr.stderr.String(), "reading config file")
	assert.Empty(t, tr.stdout.String())
}

func TestCheckWithoutClusterIsUnknown(t *testing.T) {
	path, cleanup := writeConfig(t, exampleConfig)
	defer cleanup()

	tr := newTestRoot()
	tr.opts.newCluster = func(string, log.Logger) (*kubernetes.Cluster, error) {
		return nil, errors.New("no kubeconfig")
	}
	err := tr.run("check", "--config", path)
	exit, ok := err.(exitError)
	require.True(t, ok, "expected exit error, got %v", err)
	assert.Equal(t, exitUnknown, exit.code)
	assert.Contains(t, tr.stderr.String(), "no kubeconfig")
}

func TestReportJSON(t *testing.T) {
	app := okServer()
	defer app.Close()
	path, cleanup := writeConfig(t, exampleConfig+"APP_URL="+app.URL+"\n")
	defer cleanup()

	tr := newTestRoot()
	require.NoError(t, tr.run("report", "--config", path, "--image", "app"))

	var s health.Snapshot
	require.NoError(t, json.Unmarshal(tr.stdout.Bytes(), &s))
	assert.Equal(t, "app", s.Release)
	assert.Equal(t, "prod", s.Namespace)
	assert.Len(t, s.Results, 6)
	assert.Equal(t, health.Critical, s.Classification)
	assert.True(t, s.DeploymentMissing)
}

func TestReportRejectsUnknownFormat(t *testing.T) {
	path, cleanup := writeConfig(t, exampleConfig)
	defer cleanup()
	err := newTestRoot().run("report", "--config", path, "-o", "xml")
	assert.Equal(t, errorInvalidOutputFormat, err)
}
