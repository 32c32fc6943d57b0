package main

import (
	"github.com/go-kit/kit/log"
	"github.com/spf13/pflag"

	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/deploy"
	"github.com/fluxcd/imagepromote/pkg/health"
	"github.com/fluxcd/imagepromote/pkg/notify"
)

// healthOpts are shared by the commands that evaluate a release.
type healthOpts struct {
	image    string
	auditLog string
}

func (h *healthOpts) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&h.image, "image", "i", "", "image name, overriding the one worked out from the configuration; used to find the release")
	fs.StringVar(&h.auditLog, "audit-log", "", "append JSON health snapshots to this file, rather than logging them")
}

func alertSink(cfg config.MonitorConfig, logger log.Logger) notify.Sink {
	sinks := notify.Multi{notify.Log{Logger: log.With(logger, "component", "alert")}}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, notify.Slack{HookURL: cfg.SlackWebhookURL, Username: cfg.SlackUsername})
	}
	return sinks
}

func (opts *rootOpts) healthMonitor(h healthOpts) (*health.Monitor, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := opts.newCluster(opts.kubeconfig, opts.logger)
	if err != nil {
		return nil, err
	}
	release := deploy.ResolveRelease(cfg.Release, h.image)
	logger := log.With(opts.logger, "component", "health", "release", cfg.Release.Namespace+"/"+release)
	checker := health.NewChecker(c, release, cfg.Release.Namespace, cfg.Monitor)
	return health.NewMonitor(checker, cfg.Monitor, alertSink(cfg.Monitor, opts.logger), auditSink(h.auditLog, opts.logger), logger), nil
}
