package main

import (
	"github.com/spf13/cobra"
)

type reportOpts struct {
	*rootOpts
	healthOpts
	output string
}

func newReport(parent *rootOpts) *reportOpts {
	return &reportOpts{rootOpts: parent}
}

func (opts *reportOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the health checks once and print a structured snapshot.",
		Example: makeExample(
			"promotectl report",
			"promotectl report -o yaml",
		),
		RunE: opts.RunE,
	}
	opts.healthOpts.addFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputFormatJSON, "output format: json, yaml or table")
	return cmd
}

func (opts *reportOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	switch opts.output {
	case outputFormatJSON, outputFormatYAML, outputFormatTable:
	default:
		return errorInvalidOutputFormat
	}
	m, err := opts.healthMonitor(opts.healthOpts)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()

	return writeSnapshot(cmd.OutOrStdout(), opts.output, m.Report(ctx))
}
