package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/deploy"
	"github.com/fluxcd/imagepromote/pkg/release"
)

type rollbackOpts struct {
	*rootOpts
	image    string
	revision int
	backup   string
	force    bool
	// confirm asks whether to go ahead; replaced in tests.
	confirm func(cmd *cobra.Command, question string) (bool, error)
}

func newRollback(parent *rootOpts) *rollbackOpts {
	return &rollbackOpts{rootOpts: parent, confirm: askYesNo}
}

func (opts *rollbackOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Return the release to an earlier revision, or to a snapshot taken by deploy --backup-dir.",
		Example: makeExample(
			"promotectl rollback",
			"promotectl rollback --revision=4",
			"promotectl rollback --backup=backups/prod-app-r4-20200101T000000Z.yaml --force",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "image name, overriding the one worked out from the configuration; used to find the release")
	cmd.Flags().IntVar(&opts.revision, "revision", 0, "revision to return to; 0 means the one before the current one")
	cmd.Flags().StringVar(&opts.backup, "backup", "", "snapshot file to restore")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "don't ask for confirmation")
	return cmd
}

func (opts *rollbackOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.revision < 0 {
		return newUsageError("--revision must not be negative")
	}
	if opts.revision != 0 && opts.backup != "" {
		return newUsageError("please supply only one of --revision, --backup")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	var (
		question string
		snapshot release.Snapshot
		name     = deploy.ResolveRelease(cfg.Release, opts.image)
	)
	switch {
	case opts.backup != "":
		if snapshot, err = release.LoadSnapshot(opts.backup); err != nil {
			return err
		}
		if snapshot.Namespace == "" {
			snapshot.Namespace = cfg.Release.Namespace
		}
		question = fmt.Sprintf("Restore release %s/%s to tag %s from chart %s?", snapshot.Namespace, snapshot.Release, snapshot.Tag, snapshot.ChartPath)
	case opts.revision > 0:
		question = fmt.Sprintf("Roll back release %s/%s to revision %d?", cfg.Release.Namespace, name, opts.revision)
	default:
		question = fmt.Sprintf("Roll back release %s/%s to its previous revision?", cfg.Release.Namespace, name)
	}
	if !opts.force {
		ok, err := opts.confirm(cmd, question)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.ErrOrStderr(), "Not rolling back.")
			return nil
		}
	}

	namespace := cfg.Release.Namespace
	if opts.backup != "" {
		namespace = snapshot.Namespace
	}
	helm, err := opts.helm(namespace)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()

	if opts.backup != "" {
		if err := release.Restore(ctx, helm, snapshot, cfg.Release.Timeout); err != nil {
			return err
		}
		opts.logger.Log("restored", opts.backup, "release", snapshot.Namespace+"/"+snapshot.Release, "tag", snapshot.Tag)
		return nil
	}
	if err := helm.Rollback(ctx, name, opts.revision); err != nil {
		return err
	}
	opts.logger.Log("rolled-back", namespace+"/"+name, "revision", opts.revision)
	return nil
}

func askYesNo(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	key, err := credentials.ReadKey()
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return false, err
	}
	return key == 'y' || key == 'Y', nil
}
