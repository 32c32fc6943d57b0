package main

import (
	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	transport "github.com/fluxcd/imagepromote/pkg/http"
)

type monitorOpts struct {
	*rootOpts
	healthOpts
	listen string
}

func newMonitor(parent *rootOpts) *monitorOpts {
	return &monitorOpts{rootOpts: parent}
}

func (opts *monitorOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check the release's health on an interval, alerting when it stays critical.",
		RunE:  opts.RunE,
	}
	opts.healthOpts.addFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.listen, "listen", "l", ":3031", "address to serve metrics and health on; empty to not serve")
	return cmd
}

func (opts *monitorOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	m, err := opts.healthMonitor(opts.healthOpts)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(opts.logger)
	defer cancel()

	monitorDone := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(monitorDone)
	}()

	if opts.listen == "" {
		<-monitorDone
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		handler := transport.NewHandler(m, transport.NewRouter())
		errc <- transport.ListenAndServe(opts.listen, handler, log.With(opts.logger, "component", "http"), ctx.Done())
	}()

	select {
	case err := <-errc:
		// The server couldn't start, or stopped on its own.
		cancel()
		<-monitorDone
		return err
	case <-monitorDone:
		return <-errc
	}
}
