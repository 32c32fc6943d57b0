package main

import (
	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/fluxcd/imagepromote/pkg/bootstrap"
)

type setupOpts struct {
	*rootOpts
	dryRun bool
}

func newSetup(parent *rootOpts) *setupOpts {
	return &setupOpts{rootOpts: parent}
}

func (opts *setupOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install the container engine, helm and kubectl on this host.",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the commands that would be run, and run none of them")
	return cmd
}

func (opts *setupOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()
	return bootstrap.New(log.With(opts.logger, "component", "setup"), opts.dryRun).Setup(ctx)
}
