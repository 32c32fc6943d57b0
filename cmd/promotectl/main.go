package main

import (
	"fmt"
	"os"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

func main() {
	rootCmd := newRoot().Command()
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}
	switch err := err.(type) {
	case exitError:
		os.Exit(err.code)
	case usageError:
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		cmd.Println(cmd.UsageString())
	default:
		if help, ok := fluxerr.HelpFor(err); ok {
			fmt.Fprintf(os.Stderr, "Error: %s\n\n%s\n", err, help)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	os.Exit(1)
}
