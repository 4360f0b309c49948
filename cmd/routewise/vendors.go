package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LavishGent/routewise/internal/router"
	"github.com/LavishGent/routewise/internal/types"
)

func newVendorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "Show the configured vendors of each data operation",
		Long: "List every catalogued operation with its category and configured primary " +
			"vendors. Per-operation overrides take precedence over the category. Vendors " +
			"registered at runtime follow the primaries as fallbacks.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vendors := a.cfg.Vendors
			out := cmd.OutOrStdout()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tOPERATION\tVENDORS\tTTL")
			for _, category := range router.Categories() {
				for _, op := range router.OperationsIn(category) {
					primaries := types.SplitList(vendors.DataVendors[category])
					source := ""
					if list := types.SplitList(vendors.ToolVendors[op]); len(list) > 0 {
						primaries, source = list, " (override)"
					}
					if len(primaries) == 0 {
						primaries = []string{router.DefaultVendor}
					}
					ttl := "-"
					if d := a.cfg.Cache.TTLFor(op); d > 0 {
						ttl = d.String()
					} else if d < 0 {
						ttl = "forever"
					}
					fmt.Fprintf(w, "%s\t%s\t%v%s\t%s\n", category, op, primaries, source, ttl)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if vendors.PriorityOrder != "" {
				fmt.Fprintf(out, "\nFallback priority: %v\n", types.SplitList(vendors.PriorityOrder))
			}
			if len(vendors.Unavailable) > 0 {
				fmt.Fprintf(out, "Unavailable:       %v\n", vendors.Unavailable)
			}
			return nil
		},
	}
}
