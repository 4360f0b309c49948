package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/routewise/internal/types"
)

// OpenAIConfig configures a client for an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// BatchConcurrency caps parallel requests in Batch. Zero is unlimited.
	BatchConcurrency int
}

type openaiClient struct {
	client    openai.Client
	model     string
	tools     []Tool
	batchSize int
}

// NewOpenAIClient returns a Client over the openai-go SDK. SDK retries are
// disabled; the executor owns retries.
func NewOpenAIClient(cfg OpenAIConfig) Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &openaiClient{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		batchSize: cfg.BatchConcurrency,
	}
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) BindTools(tools []Tool) Client {
	bound := *c
	bound.tools = append([]Tool(nil), tools...)
	return &bound
}

func (c *openaiClient) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messageParams(messages),
	}
	if len(c.tools) > 0 {
		params.Tools = toolParams(c.tools)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateError(c.model, err)
	}
	if len(completion.Choices) == 0 {
		return nil, types.NewBackendError(c.model, types.ClassTransient, errors.New("response has no choices"))
	}

	msg := completion.Choices[0].Message
	resp := &Response{
		Content: msg.Content,
		Model:   completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// Batch invokes every conversation in parallel. Results keep input order;
// the first error cancels the rest.
func (c *openaiClient) Batch(ctx context.Context, conversations [][]Message) ([]*Response, error) {
	out := make([]*Response, len(conversations))
	g, gctx := errgroup.WithContext(ctx)
	if c.batchSize > 0 {
		g.SetLimit(c.batchSize)
	}
	for i, conv := range conversations {
		g.Go(func() error {
			resp, err := c.Invoke(gctx, conv)
			if err != nil {
				return fmt.Errorf("conversation %d: %w", i, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func messageParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			p := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				p.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &p})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toolParams(tools []Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			def.Description = openai.String(t.Description)
		}
		out = append(out, openai.ChatCompletionFunctionTool(def))
	}
	return out
}

// translateError classifies an SDK error by HTTP status. Context
// cancellation is returned as is.
func translateError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		be := types.NewBackendError(model, classForStatus(apiErr.StatusCode), err)
		be.StatusCode = apiErr.StatusCode
		return be
	}
	return types.NewBackendError(model, types.ClassTransient, err)
}

func classForStatus(status int) types.ErrorClass {
	switch status {
	case http.StatusTooManyRequests:
		return types.ClassRateLimited
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return types.ClassBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.ClassFatal
	default:
		return types.ClassTransient
	}
}
