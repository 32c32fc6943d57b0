package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fluxcd/imagepromote/pkg/bootstrap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

type versionOpts struct {
	tools bool
}

func newVersionCommand() *cobra.Command {
	opts := &versionOpts{}
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the promotectl version",
		Example: makeExample(
			"promotectl version",
			"promotectl version --tools",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.tools, "tools", false, "also print the Go runtime and the helm and kubectl releases setup installs")
	return cmd
}

func (opts *versionOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	v := version
	if v == "" {
		v = "unversioned"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, v)
	if !opts.tools {
		return nil
	}
	w := newTabwriter(out)
	fmt.Fprintf(w, "go\t%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "helm\t%s\n", bootstrap.HelmVersion)
	fmt.Fprintf(w, "kubectl\t%s\n", bootstrap.KubectlVersion)
	return w.Flush()
}
