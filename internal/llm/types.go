// Package llm routes chat calls for the deep and quick thinking roles across
// an ordered list of candidate models, retrying rate-limited models with
// backoff and falling back to the next candidate on failure.
package llm

import (
	"context"

	"github.com/LavishGent/routewise/internal/types"
)

// Model roles.
const (
	RoleDeepThink  = "deep_think"
	RoleQuickThink = "quick_think"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Capability tiers known to the scorer.
const (
	TierFinanceSafe   = "finance_safe"
	TierCostSaver     = "cost_saver"
	TierResearchHeavy = "research_heavy"
	TierFreeTrial     = "free_trial"
)

// Message is one chat turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall is a function call requested by the model. Arguments is the raw
// JSON argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Response is the assistant turn returned by a model.
type Response struct {
	Content   string     `json:"content"`
	Model     string     `json:"model"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Client is one chat model endpoint. Implementations translate their own
// failures into *types.BackendError so the executor can classify them.
type Client interface {
	Invoke(ctx context.Context, messages []Message) (*Response, error)
	Batch(ctx context.Context, conversations [][]Message) ([]*Response, error)
	BindTools(tools []Tool) Client
	Model() string
}

// Candidate is one model in a role's fallback order.
type Candidate struct {
	Alias    string      `json:"alias"`
	Resolved string      `json:"resolved"`
	Tier     string      `json:"tier,omitempty"`
	Cost     *types.Cost `json:"cost,omitempty"`
	Score    float64     `json:"score"`
}
