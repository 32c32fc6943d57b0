package config

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
NEXUS_REGISTRY=nexus.local
HARBOR_REGISTRY=harbor.local
`

func TestDefaults(t *testing.T) {
	cfg, err := ParseEnvFile(strings.NewReader(minimal))
	require.NoError(t, err)

	assert.Equal(t, "nexus.local", cfg.Release.SourceRegistry)
	assert.Equal(t, "harbor.local", cfg.Release.TargetRegistry)
	assert.Equal(t, DefaultNamespace, cfg.Release.Namespace)
	assert.Equal(t, DefaultTimeout, cfg.Release.Timeout)
	assert.True(t, cfg.Release.EnableRollback)
	assert.True(t, cfg.Release.EnableCleanup)
	assert.Equal(t, RegistryDriverDocker, cfg.Release.RegistryDriver)

	assert.Equal(t, DefaultMonitorInterval, cfg.Monitor.Interval)
	assert.Equal(t, DefaultAlertThreshold, cfg.Monitor.AlertThreshold)
	assert.Equal(t, DefaultAlertCooldown, cfg.Monitor.AlertCooldown)
	assert.Equal(t, DefaultHealthPath, cfg.Monitor.HealthPath)
	assert.Equal(t, DefaultProbeTimeout, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, int64(DefaultCPUCeiling), cfg.Monitor.CPUCeiling)
	assert.Equal(t, int64(DefaultMemoryCeiling), cfg.Monitor.MemoryCeiling)
}

func TestExplicitFalseIsKept(t *testing.T) {
	cfg, err := ParseEnvFile(strings.NewReader(minimal + `
ENABLE_ROLLBACK=false
ENABLE_CLEANUP="false"
`))
	require.NoError(t, err)
	assert.False(t, cfg.Release.EnableRollback)
	assert.False(t, cfg.Release.EnableCleanup)
}

func TestEnvFileIgnoresNoise(t *testing.T) {
	cfg, err := ParseEnvFile(strings.NewReader(`
# registries
SOURCE_REGISTRY=nexus.local
TARGET_REGISTRY = 'harbor.local/library'
this line has no equals sign
SOMETHING_ELSE=whatever
HELM_CHART_PATH=./charts/{{ image_name }}
RELEASE_NAME={{ image_name }}-prod
NAMESPACE=prod
`))
	require.NoError(t, err)
	assert.Equal(t, "harbor.local/library", cfg.Release.TargetRegistry)
	assert.Equal(t, "./charts/{{ image_name }}", cfg.Release.ChartPath)
	assert.Equal(t, "{{ image_name }}-prod", cfg.Release.ReleaseName)
	assert.Equal(t, "prod", cfg.Release.Namespace)
}

func TestMissingRegistries(t *testing.T) {
	_, err := ParseEnvFile(strings.NewReader("NAMESPACE=prod\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "SOURCE_REGISTRY")
	assert.Contains(t, err.Error(), "TARGET_REGISTRY")
}

func TestInvalidValues(t *testing.T) {
	for name, extra := range map[string]string{
		"timeout":   "TIMEOUT=soon",
		"negative":  "TIMEOUT=-5",
		"driver":    "REGISTRY_DRIVER=podman",
		"policy":    "TAG_POLICY=semver:not a constraint",
		"threshold": "ALERT_THRESHOLD=0",
		"cpu":       "CPU_CEILING=lots",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvFile(strings.NewReader(minimal + extra + "\n"))
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestTimeoutFormats(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"120":   120 * time.Second,
		"2m":    2 * time.Minute,
		"1m30s": 90 * time.Second,
	} {
		cfg, err := ParseEnvFile(strings.NewReader(minimal + "TIMEOUT=" + in + "\n"))
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Release.Timeout, in)
	}
}

func TestYAMLAndEnvFileAgree(t *testing.T) {
	fromEnv, err := ParseEnvFile(strings.NewReader(`
NEXUS_REGISTRY=nexus.local
HARBOR_REGISTRY=harbor.local
HELM_CHART_PATH=./charts/app
RELEASE_NAME=app
NAMESPACE=prod
TIMEOUT=600
ENABLE_CLEANUP=false
TAG_POLICY=semver:~1.2
MONITOR_INTERVAL=30
ALERT_THRESHOLD=5
SLACK_WEBHOOK_URL=https://hooks.slack.com/services/x
`))
	require.NoError(t, err)

	fromYAML, err := ParseYAML([]byte(`
sourceRegistry: nexus.local
targetRegistry: harbor.local
chartPath: ./charts/app
releaseName: app
namespace: prod
timeout: 600
enableCleanup: false
tagPolicy: semver:~1.2
monitor:
  interval: 30s
  alertThreshold: 5
  slackWebhookURL: https://hooks.slack.com/services/x
`))
	require.NoError(t, err)
	assert.Equal(t, fromEnv, fromYAML)
}

func TestYAMLRejectsUnknownFields(t *testing.T) {
	_, err := ParseYAML([]byte("sourceRegistry: a\ntargetRegistry: b\nregistery: c\n"))
	assert.Error(t, err)
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	dir, err := ioutil.TempDir("", "config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	conf := filepath.Join(dir, "deployment.conf")
	require.NoError(t, ioutil.WriteFile(conf, []byte(minimal), 0600))
	cfg, err := Load(conf)
	require.NoError(t, err)
	assert.Equal(t, "nexus.local", cfg.Release.SourceRegistry)

	yml := filepath.Join(dir, "deployment.yaml")
	require.NoError(t, ioutil.WriteFile(yml, []byte("sourceRegistry: a.local\ntargetRegistry: b.local\n"), 0600))
	cfg, err = Load(yml)
	require.NoError(t, err)
	assert.Equal(t, "b.local", cfg.Release.TargetRegistry)

	_, err = Load(filepath.Join(dir, "missing.conf"))
	assert.Error(t, err)
}
