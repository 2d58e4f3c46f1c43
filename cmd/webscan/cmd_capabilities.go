package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/scan"
)

func (a *app) capabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the capabilities a scan can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tSEVERITY\tDESCRIPTION")
			for _, c := range scan.Capabilities() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Category, c.Category.DefaultSeverity(), c.Description)
			}
			return tw.Flush()
		},
	}
}
