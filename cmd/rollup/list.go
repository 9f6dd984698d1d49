package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-reports/internal/reports"
)

func listCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := reports.LoadCatalog(state.v.GetString("catalog"))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSOURCE\tKEY\tAXES\tTITLE")
			for _, def := range catalog.Definitions() {
				axes := make([]string, len(def.Axes))
				for i, axis := range def.Axes {
					axes[i] = axis.Name
					if len(axis.Values) > 0 {
						axes[i] += "=" + strings.Join(axis.Values, ",")
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.Name, def.Source, strings.Join(def.Key.Fields, "+"), strings.Join(axes, " "), def.Title)
			}
			return w.Flush()
		},
	}
}
