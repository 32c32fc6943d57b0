package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ghodss/yaml"

	"github.com/fluxcd/imagepromote/pkg/health"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
	outputFormatYAML  = "yaml"
)

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, ex := range examples {
		fmt.Fprintf(&buf, "  %s\n", ex)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func newTabwriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
}

func writeSnapshot(out io.Writer, format string, s health.Snapshot) error {
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case outputFormatYAML:
		bs, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = out.Write(bs)
		return err
	case outputFormatTable:
		w := newTabwriter(out)
		fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
		for _, r := range s.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Message)
		}
		w.Flush()
		fmt.Fprintf(out, "\n%s/%s: %s (%d/%d checks passed)\n", s.Namespace, s.Release, s.Classification, s.Passed, s.Total)
		return nil
	default:
		return errorInvalidOutputFormat
	}
}
