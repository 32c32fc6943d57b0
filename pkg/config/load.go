package config

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Load reads the configuration at path. Files ending in .yaml or
// .yml are YAML documents; anything else is read as KEY=VALUE lines.
func Load(path string) (Config, error) {
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, InvalidError(errors.Wrap(err, "reading config file"))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(bs)
	default:
		return ParseEnvFile(bytes.NewReader(bs))
	}
}

// ParseYAML reads a YAML configuration document.
func ParseYAML(bs []byte) (Config, error) {
	var doc document
	if err := yaml.UnmarshalStrict(bs, &doc); err != nil {
		return Config{}, InvalidError(errors.Wrap(err, "parsing YAML config"))
	}
	return doc.resolve()
}

// ParseEnvFile reads KEY=VALUE lines. Blank lines and lines starting
// with # are ignored, as are lines without an =. Unknown keys are
// ignored, so the same file can carry settings for other tools.
func ParseEnvFile(r io.Reader) (Config, error) {
	var doc document
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := unquote(strings.TrimSpace(parts[1]))
		if set, ok := envKeys[key]; ok {
			set(&doc, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, InvalidError(errors.Wrap(err, "reading config file"))
	}
	return doc.resolve()
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func boolPtr(s string) *bool {
	b := strings.EqualFold(s, "true")
	return &b
}

// The NEXUS_ and HARBOR_ names are kept so existing deployment.conf
// files go on working.
var envKeys = map[string]func(*document, string){
	"SOURCE_REGISTRY": func(d *document, v string) { d.SourceRegistry = v },
	"NEXUS_REGISTRY":  func(d *document, v string) { d.SourceRegistry = v },
	"TARGET_REGISTRY": func(d *document, v string) { d.TargetRegistry = v },
	"HARBOR_REGISTRY": func(d *document, v string) { d.TargetRegistry = v },
	"HELM_CHART_PATH": func(d *document, v string) { d.ChartPath = v },
	"CHART_PATH":      func(d *document, v string) { d.ChartPath = v },
	"RELEASE_NAME":    func(d *document, v string) { d.ReleaseName = v },
	"NAMESPACE":       func(d *document, v string) { d.Namespace = v },
	"TIMEOUT":         func(d *document, v string) { d.Timeout = v },
	"ENABLE_ROLLBACK": func(d *document, v string) { d.EnableRollback = boolPtr(v) },
	"ENABLE_CLEANUP":  func(d *document, v string) { d.EnableCleanup = boolPtr(v) },
	"IMAGE_NAME":      func(d *document, v string) { d.ImageName = v },
	"TAG_POLICY":      func(d *document, v string) { d.TagPolicy = v },
	"REGISTRY_DRIVER": func(d *document, v string) { d.RegistryDriver = v },

	"MONITOR_INTERVAL":  func(d *document, v string) { d.Monitor.Interval = v },
	"ALERT_THRESHOLD":   func(d *document, v string) { d.Monitor.AlertThreshold = v },
	"ALERT_COOLDOWN":    func(d *document, v string) { d.Monitor.AlertCooldown = v },
	"APP_URL":           func(d *document, v string) { d.Monitor.AppURL = v },
	"HEALTH_PATH":       func(d *document, v string) { d.Monitor.HealthPath = v },
	"PROBE_TIMEOUT":     func(d *document, v string) { d.Monitor.ProbeTimeout = v },
	"CPU_CEILING":       func(d *document, v string) { d.Monitor.CPUCeiling = v },
	"MEMORY_CEILING":    func(d *document, v string) { d.Monitor.MemoryCeiling = v },
	"SLACK_WEBHOOK_URL": func(d *document, v string) { d.Monitor.SlackWebhookURL = v },
	"SLACK_USERNAME":    func(d *document, v string) { d.Monitor.SlackUsername = v },
}
