package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/LavishGent/routewise/internal/llm"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(newConfigShowCmd(a), newConfigValidateCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Print the configuration after defaults, the config file and environment overrides. Secrets are redacted.",
		Example: `
routewise config show
routewise config show --yaml -c routewise.yaml
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(a.cfg); err != nil {
					return err
				}
				return enc.Close()
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(a.cfg)
		},
	}
	cmd.Flags().BoolVarP(&asYAML, "yaml", "y", false, "output as YAML")
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Check the configuration and resolve the model candidates of both roles.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := llm.PlanModels(&a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid")
			fmt.Fprintf(out, "  provider:    %s\n", plan.Provider)
			fmt.Fprintf(out, "  deep_think:  %s (+%d fallbacks)\n", plan.Deep[0].Resolved, len(plan.Deep)-1)
			fmt.Fprintf(out, "  quick_think: %s (+%d fallbacks)\n", plan.Quick[0].Resolved, len(plan.Quick)-1)
			if a.cfg.Audit.Enabled {
				fmt.Fprintf(out, "  audit:       %s\n", a.cfg.Audit.Dir)
			}
			return nil
		},
	}
}
