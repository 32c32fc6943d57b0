package main

import (
	"fmt"

	"github.com/spf13/cobra"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
	"github.com/fluxcd/imagepromote/pkg/health"
)

// exitUnknown is returned when the checks could not be run at all,
// so a scheduler can tell it apart from any classification.
const exitUnknown = 3

type checkOpts struct {
	*rootOpts
	healthOpts
}

func newCheck(parent *rootOpts) *checkOpts {
	return &checkOpts{rootOpts: parent}
}

func (opts *checkOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the health checks once; exit 0 if healthy, 1 on warning, 2 if critical, 3 if the checks could not run.",
		RunE:  opts.RunE,
	}
	opts.healthOpts.addFlags(cmd.Flags())
	return cmd
}

func (opts *checkOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	m, err := opts.healthMonitor(opts.healthOpts)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		if help, ok := fluxerr.HelpFor(err); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), help)
		}
		return exitError{code: exitUnknown}
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()

	s := m.Tick(ctx)
	if err := writeSnapshot(cmd.OutOrStdout(), outputFormatTable, s); err != nil {
		return err
	}
	if s.Classification != health.Healthy {
		return exitError{code: s.Classification.ExitCode()}
	}
	return nil
}
