package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/internal/router"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		role   string
		tools  bool
		system string
	)
	cmd := &cobra.Command{
		Use:   "chat [--role deep|quick] [--tools] <prompt>",
		Short: "Send one prompt through the model fallback chain",
		Example: `
# Ask the quick-thinking model
routewise chat "Summarise today's NVDA news"

# Use the deep-thinking model and offer the data operations as tools
routewise chat --role deep --tools "Compare AAPL and MSFT cash flow"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != "deep" && role != "quick" {
				return fmt.Errorf("unknown role %q; use deep or quick", role)
			}

			svc, err := a.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			models, err := svc.Models(cmd.Context())
			if err != nil {
				return err
			}
			model := models.Quick
			if role == "deep" {
				model = models.Deep
			}
			if tools {
				if model, err = model.BindTools(catalogTools()); err != nil {
					return err
				}
			}

			var messages []llm.Message
			if system != "" {
				messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
			}
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.Join(args, " ")})

			resp, err := model.Invoke(cmd.Context(), messages)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.Content != "" {
				fmt.Fprintln(out, resp.Content)
			}
			for _, tc := range resp.ToolCalls {
				fmt.Fprintf(out, "tool call: %s(%s)\n", tc.Name, tc.Arguments)
			}
			a.logger.Debug("Chat completed",
				"model", resp.Model,
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "quick", "model role: deep or quick")
	cmd.Flags().BoolVar(&tools, "tools", false, "offer every catalogued data operation as a tool")
	cmd.Flags().StringVar(&system, "system", "", "system message sent before the prompt")
	return cmd
}

// catalogTools describes every catalogued operation as a function tool
// taking positional string arguments.
func catalogTools() []llm.Tool {
	ops := router.Operations()
	tools := make([]llm.Tool, 0, len(ops))
	for _, op := range ops {
		category, _ := router.CategoryFor(op)
		tools = append(tools, llm.Tool{
			Name:        op,
			Description: fmt.Sprintf("Fetch %s (%s)", strings.ReplaceAll(strings.TrimPrefix(op, "get_"), "_", " "), category),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"args": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []string{"args"},
			},
		})
	}
	return tools
}
