// config is the package containing configuration for a promotion:
// which registries to move images between, which chart to release
// and how to watch it afterwards. It is shared by the deploy
// pipeline, the health monitor and the command-line tool.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
	"github.com/fluxcd/imagepromote/pkg/policy"
)

const (
	DefaultConfigPath = "./deployment.conf"

	DefaultNamespace      = "default"
	DefaultTimeout        = 300 * time.Second
	DefaultRegistryDriver = "docker"

	DefaultMonitorInterval = 60 * time.Second
	DefaultAlertThreshold  = 3
	DefaultAlertCooldown   = 1800 * time.Second
	DefaultHealthPath      = "/health"
	DefaultProbeTimeout    = 5 * time.Second
	DefaultCPUCeiling      = 800  // millicores, averaged per pod
	DefaultMemoryCeiling   = 1024 // MiB, averaged per pod
	DefaultSlackUsername   = "imagepromote"
)

// ErrInvalid is the cause of every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Registry drivers understood by the registry package.
const (
	RegistryDriverDocker = "docker"
	RegistryDriverRemote = "remote"
)

// ReleaseConfig says where an image comes from, where it goes, and
// how it is rolled out. It is passed around by value; nothing
// changes it once loaded.
type ReleaseConfig struct {
	SourceRegistry string
	TargetRegistry string
	ChartPath      string
	ReleaseName    string
	Namespace      string
	Timeout        time.Duration
	EnableRollback bool
	EnableCleanup  bool
	ImageName      string
	// TagPolicy restricts which tags may be promoted; see the policy
	// package for the syntax. Empty means any tag.
	TagPolicy      string
	RegistryDriver string
}

// MonitorConfig tunes the health monitor.
type MonitorConfig struct {
	Interval       time.Duration
	AlertThreshold int
	AlertCooldown  time.Duration
	// AppURL is the base URL for the application probe. When empty,
	// the service's cluster DNS name is used.
	AppURL        string
	HealthPath    string
	ProbeTimeout  time.Duration
	CPUCeiling    int64 // millicores
	MemoryCeiling int64 // MiB

	SlackWebhookURL string
	SlackUsername   string
}

type Config struct {
	Release ReleaseConfig
	Monitor MonitorConfig
}

// Validate checks the fields without which nothing can work.
func (c ReleaseConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.SourceRegistry) == "" {
		problems = append(problems, "SOURCE_REGISTRY (or NEXUS_REGISTRY) is required")
	}
	if strings.TrimSpace(c.TargetRegistry) == "" {
		problems = append(problems, "TARGET_REGISTRY (or HARBOR_REGISTRY) is required")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "TIMEOUT must be positive")
	}
	switch c.RegistryDriver {
	case RegistryDriverDocker, RegistryDriverRemote:
	default:
		problems = append(problems, fmt.Sprintf("REGISTRY_DRIVER %q is not one of %q, %q", c.RegistryDriver, RegistryDriverDocker, RegistryDriverRemote))
	}
	if _, err := policy.Parse(c.TagPolicy); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return InvalidError(errors.Wrap(ErrInvalid, strings.Join(problems, "; ")))
	}
	return nil
}

func (c MonitorConfig) Validate() error {
	var problems []string
	if c.Interval <= 0 {
		problems = append(problems, "MONITOR_INTERVAL must be positive")
	}
	if c.AlertThreshold < 1 {
		problems = append(problems, "ALERT_THRESHOLD must be at least 1")
	}
	if c.AlertCooldown < 0 {
		problems = append(problems, "ALERT_COOLDOWN must not be negative")
	}
	if c.ProbeTimeout <= 0 {
		problems = append(problems, "PROBE_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return InvalidError(errors.Wrap(ErrInvalid, strings.Join(problems, "; ")))
	}
	return nil
}

// InvalidError dresses a validation failure up for the user.
func InvalidError(err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  err,
		Help: `Configuration is invalid: ` + err.Error() + `

Check the configuration file given with --config (by default
` + DefaultConfigPath + `). It needs at least the source and target
registries, e.g.,

    SOURCE_REGISTRY=nexus.local
    TARGET_REGISTRY=harbor.local
`,
	}
}

// document is the on-disk shape of the configuration, whichever
// format it came in. Everything is a string or pointer so that
// "not given" is distinguishable from "given as zero" when merging
// defaults.
type document struct {
	SourceRegistry string `yaml:"sourceRegistry"`
	TargetRegistry string `yaml:"targetRegistry"`
	ChartPath      string `yaml:"chartPath"`
	ReleaseName    string `yaml:"releaseName"`
	Namespace      string `yaml:"namespace"`
	Timeout        string `yaml:"timeout"`
	EnableRollback *bool  `yaml:"enableRollback"`
	EnableCleanup  *bool  `yaml:"enableCleanup"`
	ImageName      string `yaml:"imageName"`
	TagPolicy      string `yaml:"tagPolicy"`
	RegistryDriver string `yaml:"registryDriver"`

	Monitor monitorDocument `yaml:"monitor"`
}

type monitorDocument struct {
	Interval        string `yaml:"interval"`
	AlertThreshold  string `yaml:"alertThreshold"`
	AlertCooldown   string `yaml:"alertCooldown"`
	AppURL          string `yaml:"appURL"`
	HealthPath      string `yaml:"healthPath"`
	ProbeTimeout    string `yaml:"probeTimeout"`
	CPUCeiling      string `yaml:"cpuCeiling"`
	MemoryCeiling   string `yaml:"memoryCeiling"`
	SlackWebhookURL string `yaml:"slackWebhookURL"`
	SlackUsername   string `yaml:"slackUsername"`
}

func defaultDocument() document {
	yes := true
	return document{
		Namespace:      DefaultNamespace,
		Timeout:        fmt.Sprint(int(DefaultTimeout.Seconds())),
		EnableRollback: &yes,
		EnableCleanup:  &yes,
		RegistryDriver: DefaultRegistryDriver,
		Monitor: monitorDocument{
			Interval:       DefaultMonitorInterval.String(),
			AlertThreshold: fmt.Sprint(DefaultAlertThreshold),
			AlertCooldown:  DefaultAlertCooldown.String(),
			HealthPath:     DefaultHealthPath,
			ProbeTimeout:   DefaultProbeTimeout.String(),
			CPUCeiling:     fmt.Sprint(DefaultCPUCeiling),
			MemoryCeiling:  fmt.Sprint(DefaultMemoryCeiling),
			SlackUsername:  DefaultSlackUsername,
		},
	}
}

// resolve fills in defaults, converts and validates.
func (d document) resolve() (Config, error) {
	if err := mergo.Merge(&d, defaultDocument()); err != nil {
		return Config{}, errors.Wrap(err, "merging configuration defaults")
	}

	var problems []string
	duration := func(key, s string) time.Duration {
		v, err := parseSeconds(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
		return v
	}
	integer := func(key, s string) int64 {
		var v int64
		if _, err := fmt.Sscan(strings.TrimSpace(s), &v); err != nil {
			problems = append(problems, fmt.Sprintf("%s: expected a number, got %q", key, s))
		}
		return v
	}

	cfg := Config{
		Release: ReleaseConfig{
			SourceRegistry: d.SourceRegistry,
			TargetRegistry: d.TargetRegistry,
			ChartPath:      d.ChartPath,
			ReleaseName:    d.ReleaseName,
			Namespace:      d.Namespace,
			Timeout:        duration("TIMEOUT", d.Timeout),
			EnableRollback: *d.EnableRollback,
			EnableCleanup:  *d.EnableCleanup,
			ImageName:      d.ImageName,
			TagPolicy:      d.TagPolicy,
			RegistryDriver: strings.ToLower(d.RegistryDriver),
		},
		Monitor: MonitorConfig{
			Interval:        duration("MONITOR_INTERVAL", d.Monitor.Interval),
			AlertThreshold:  int(integer("ALERT_THRESHOLD", d.Monitor.AlertThreshold)),
			AlertCooldown:   duration("ALERT_COOLDOWN", d.Monitor.AlertCooldown),
			AppURL:          d.Monitor.AppURL,
			HealthPath:      d.Monitor.HealthPath,
			ProbeTimeout:    duration("PROBE_TIMEOUT", d.Monitor.ProbeTimeout),
			CPUCeiling:      integer("CPU_CEILING", d.Monitor.CPUCeiling),
			MemoryCeiling:   integer("MEMORY_CEILING", d.Monitor.MemoryCeiling),
			SlackWebhookURL: d.Monitor.SlackWebhookURL,
			SlackUsername:   d.Monitor.SlackUsername,
		},
	}
	if len(problems) > 0 {
		return Config{}, InvalidError(errors.Wrap(ErrInvalid, strings.Join(problems, "; ")))
	}
	if err := cfg.Release.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.Monitor.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseSeconds accepts either a bare number of seconds (as the
// key=value format has always had it) or a Go duration string.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err == nil && fmt.Sprint(secs) == s {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("expected seconds or a duration, got %q", s)
	}
	return d, nil
}
