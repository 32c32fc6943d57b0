package main

import (
	"os"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/fluxcd/imagepromote/pkg/audit"
	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/deploy"
	"github.com/fluxcd/imagepromote/pkg/lock"
	"github.com/fluxcd/imagepromote/pkg/registry"
	"github.com/fluxcd/imagepromote/pkg/registry/middleware"
)

// Registry request limits for the daemonless driver.
const (
	registryRPS   = 50
	registryBurst = 10
)

type deployOpts struct {
	*rootOpts
	tag       string
	image     string
	dryRun    bool
	lockFile  string
	backupDir string
	auditLog  string
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Promote an image tag and release it.",
		Example: makeExample(
			"promotectl deploy --tag=v1.2.3",
			"promotectl deploy --tag=v1.2.3 --image=web --dry-run",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "image tag to promote")
	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "image name, overriding the one worked out from the configuration")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print what would be done, and do nothing")
	cmd.Flags().StringVar(&opts.lockFile, "lock-file", lock.DefaultPath, "file used to stop promotions overlapping")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", "", "snapshot the release into this directory before changing it")
	cmd.Flags().StringVar(&opts.auditLog, "audit-log", "", "append a JSON record of the promotion to this file, rather than logging it")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.tag == "" {
		return newUsageError("--tag is required")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()

	d := &deploy.Deployer{
		Config: cfg.Release,
		Logger: log.With(opts.logger, "component", "deploy"),
		DryRun: opts.dryRun,
		Audit:  auditSink(opts.auditLog, opts.logger),
	}
	if opts.dryRun {
		// Nothing is touched, so nothing needs connecting to.
		_, err := d.Deploy(ctx, opts.tag, opts.image, credentials.Credentials{})
		return err
	}

	if d.Registry, err = registryClient(cfg.Release, opts.logger); err != nil {
		return err
	}
	helm, err := opts.helm(cfg.Release.Namespace)
	if err != nil {
		return err
	}
	d.Release = helm
	d.Lock = lock.New(opts.lockFile)
	if opts.backupDir != "" {
		d.BackupDir = opts.backupDir
		d.Snapshotter = helm
	}

	creds, err := credentials.Chain(
		credentials.Env{},
		credentials.Prompt{In: os.Stdin, Out: cmd.ErrOrStderr()},
	).Fill(ctx, credentials.Credentials{})
	if err != nil {
		return err
	}

	_, err = d.Deploy(ctx, opts.tag, opts.image, creds)
	return err
}

func registryClient(cfg config.ReleaseConfig, logger log.Logger) (registry.Client, error) {
	logger = log.With(logger, "component", "registry", "driver", cfg.RegistryDriver)
	var client registry.Client
	switch cfg.RegistryDriver {
	case config.RegistryDriverRemote:
		client = registry.NewRemote(logger, &middleware.RateLimiters{
			RPS:    registryRPS,
			Burst:  registryBurst,
			Logger: logger,
		})
	default:
		docker, err := registry.NewDocker(logger)
		if err != nil {
			return nil, err
		}
		client = docker
	}
	return registry.NewInstrumentedClient(client), nil
}

func auditSink(path string, logger log.Logger) audit.Sink {
	if path == "" {
		return audit.Log{Logger: log.With(logger, "component", "audit")}
	}
	return audit.NewFile(path)
}
