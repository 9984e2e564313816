package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gatego/runner"
)

func printPipeline(w io.Writer, p runner.Pipeline, workDir string) {
	fmt.Fprintf(w, "📦 Pipeline: %s\n", p.Name)
	fmt.Fprintf(w, "📁 Workdir:  %s\n\n", workDir)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, check := range p.Checks {
		dir := ""
		if check.Dir != "" {
			dir = "(in " + check.Dir + ")"
		}
		fmt.Fprintf(tw, "  %d.\t%s\t%s\t%s\n", i+1, check.Name, check, dir)
	}
	tw.Flush()
}
