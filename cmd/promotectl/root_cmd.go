package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"

	"github.com/fluxcd/imagepromote/pkg/cluster/kubernetes"
	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/release"
)

const EnvVariableConfig = "IMAGEPROMOTE_CONFIG"

type rootOpts struct {
	configPath string
	verbose    bool
	logFormat  string
	kubeconfig string

	logger log.Logger
	// newCluster is replaced in tests.
	newCluster func(kubeconfig string, logger log.Logger) (*kubernetes.Cluster, error)
}

func newRoot() *rootOpts {
	return &rootOpts{newCluster: connectCluster}
}

var rootLongHelp = strings.TrimSpace(`
promotectl moves an image from one registry to another, rolls it out
with a Helm chart, and keeps an eye on it afterwards.

Workflow:
  promotectl setup                       # Install docker, helm and kubectl
  promotectl deploy --tag=v1.2.3 --dry-run  # What would a promotion do?
  promotectl deploy --tag=v1.2.3            # Promote and release v1.2.3
  promotectl check                       # Exit 0, 1 or 2 for healthy, warning, critical
  promotectl monitor                     # Watch the release, alerting when it stays critical
  promotectl rollback                    # Go back to the previous revision
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "promotectl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath,
		"configuration file; KEY=VALUE lines, or YAML if it ends in .yaml or .yml. You can also set the environment variable "+EnvVariableConfig)
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages too")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "fmt", "log format: fmt or json")
	cmd.PersistentFlags().StringVar(&opts.kubeconfig, "kubeconfig", "",
		"kubeconfig file; defaults to the usual client lookup, then in-cluster config")

	cmd.AddCommand(
		newDeploy(opts).Command(),
		newSetup(opts).Command(),
		newMonitor(opts).Command(),
		newCheck(opts).Command(),
		newReport(opts).Command(),
		newRollback(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if path := os.Getenv(EnvVariableConfig); path != "" && !cmd.Flags().Changed("config") {
		opts.configPath = path
	}
	logger, err := makeLogger(cmd.ErrOrStderr(), opts.logFormat, opts.verbose)
	if err != nil {
		return err
	}
	opts.logger = logger
	return nil
}

func makeLogger(w io.Writer, format string, verbose bool) (log.Logger, error) {
	var logger log.Logger
	switch format {
	case "json":
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	case "fmt", "":
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	default:
		return nil, newUsageError("--log-format must be fmt or json")
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	if verbose {
		logger = log.With(logger, "caller", log.DefaultCaller)
		return level.NewFilter(logger, level.AllowDebug()), nil
	}
	return level.NewFilter(logger, level.AllowInfo()), nil
}

func (opts *rootOpts) loadConfig() (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	level.Debug(opts.logger).Log("config", opts.configPath, "source", cfg.Release.SourceRegistry, "target", cfg.Release.TargetRegistry)
	return cfg, nil
}

func connectCluster(kubeconfig string, logger log.Logger) (*kubernetes.Cluster, error) {
	restConfig, err := kubernetes.RESTConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewClusterFromConfig(restConfig, log.With(logger, "component", "cluster"))
}

func (opts *rootOpts) helm(namespace string) (*release.Helm, error) {
	c, err := opts.newCluster(opts.kubeconfig, opts.logger)
	if err != nil {
		return nil, err
	}
	return release.NewHelm(c, namespace, log.With(opts.logger, "component", "helm")), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			logger.Log("signal", sig, "stopping", "true")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}
