package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LavishGent/routewise/internal/llm"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the model fallback order of each role",
		Long: "Resolve the configured provider, aliases, capability tiers and blocks " +
			"into the ordered candidate list each role will try. No endpoint is contacted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := llm.PlanModels(&a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Provider: %s\n", plan.Provider)
			if plan.BaseURL != "" {
				fmt.Fprintf(out, "Base URL: %s\n", plan.BaseURL)
			}
			if plan.Config.MaxCallsPerMinute > 0 && plan.Provider == llm.ProviderOpenRouter {
				fmt.Fprintf(out, "Budget:   %d calls/minute\n", plan.Config.MaxCallsPerMinute)
			}
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\t#\tALIAS\tMODEL\tTIER\tSCORE\tCOST/1K (IN/OUT)")
			writeCandidates(w, llm.RoleDeepThink, plan.Deep)
			writeCandidates(w, llm.RoleQuickThink, plan.Quick)
			return w.Flush()
		},
	}
}

func writeCandidates(w io.Writer, role string, candidates []llm.Candidate) {
	for i, c := range candidates {
		tier := c.Tier
		if tier == "" {
			tier = "-"
		}
		cost := "-"
		if c.Cost != nil {
			cost = fmt.Sprintf("$%.2f/$%.2f", c.Cost.Prompt, c.Cost.Completion)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.2f\t%s\n", role, i+1, c.Alias, c.Resolved, tier, c.Score, cost)
	}
}
