// Package openaicompat is an llm.Provider that talks to any OpenAI-compatible
// chat completions endpoint directly.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrNoChoices is returned when the endpoint answers with no choices.
var ErrNoChoices = errors.New("no choices in completion response")

// Config configures the provider.
type Config struct {
	APIKey     string
	BaseURL    string // e.g. http://localhost:11434/v1 for Ollama
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// Provider implements llm.Provider over go-openai.
type Provider struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *logging.Logger
}

// New creates a provider. An API key is required unless BaseURL points at
// a local server.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: cfg.MaxTokens,
		logger:    logging.New().WithComponent("openaicompat"),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "openai-compat" }

// Chat sends one chat completion request.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  toMessages(req.Messages),
		MaxTokens: p.maxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	out := &llm.ChatResponse{
		Content:      choice.Message.Content,
		StopReason:   string(choice.FinishReason),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCallResponse{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: p.decodeArgs(tc.Function.Name, tc.Function.Arguments),
		})
	}
	return out, nil
}

// decodeArgs parses the JSON argument string. Malformed arguments become an
// empty map; the normalizer fills defaults downstream.
func (p *Provider) decodeArgs(tool, raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		p.logger.Warn("malformed tool arguments", map[string]interface{}{"tool": tool, "error": err.Error()})
		return map[string]interface{}{}
	}
	return args
}

func toMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		switch m.Role {
		case "tool":
			cm.Role = openai.ChatMessageRoleTool
			cm.ToolCallID = m.ToolCallID
		case "assistant":
			for _, tc := range m.ToolCalls {
				data, _ := json.Marshal(tc.Args)
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(data),
					},
				})
			}
		}
		out = append(out, cm)
	}
	return out
}
