// Package decision is the boundary to the routing model. Whatever the model
// returns is parsed into a route over the closed target set or reported as
// free text; transport failures are retried within a small budget.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
)

// ErrUnavailable is returned when the model could not be reached within
// the retry budget.
var ErrUnavailable = errors.New("decision model unavailable")

// Outcome is what one decision call produced: either a route over the
// offered targets or free text that violates the contract.
type Outcome struct {
	Decision routing.RouteDecision
	FreeText string
	Valid    bool
}

// Route builds a valid outcome.
func Route(d routing.RouteDecision) Outcome { return Outcome{Decision: d, Valid: true} }

// FreeText builds a contract-violating outcome.
func FreeText(s string) Outcome { return Outcome{FreeText: s} }

// Decider produces routing decisions.
type Decider interface {
	Decide(ctx context.Context, prompt string, targets []routing.Target) (Outcome, error)
}

// Config tunes an LLMDecider.
type Config struct {
	MaxAttempts int           // transport attempts per decision (default 3)
	Backoff     time.Duration // initial backoff, doubled per retry (default 500ms)
	Timeout     time.Duration // per-call deadline (0 = none)
}

// LLMDecider asks a chat model for a JSON routing decision.
type LLMDecider struct {
	provider llm.Provider
	cfg      Config
	logger   *logging.Logger
}

// NewLLMDecider creates a decider over a provider.
func NewLLMDecider(provider llm.Provider, cfg Config) *LLMDecider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &LLMDecider{
		provider: provider,
		cfg:      cfg,
		logger:   logging.New().WithComponent("decision"),
	}
}

// Decide implements Decider.
func (d *LLMDecider) Decide(ctx context.Context, prompt string, targets []routing.Target) (Outcome, error) {
	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt(targets)},
			{Role: "user", Content: prompt},
		},
	}

	var lastErr error
	backoff := d.cfg.Backoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		resp, err := d.chat(ctx, req)
		if err == nil {
			return Parse(resp.Content, targets), nil
		}
		lastErr = err
		d.logger.Warn("decision call failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt == d.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		backoff *= 2
	}
	return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (d *LLMDecider) chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	resp, err := d.provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty response from provider")
	}
	return resp, nil
}

func systemPrompt(targets []routing.Target) string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.String())
	}
	return fmt.Sprintf(`You are the routing supervisor. Reply with exactly one JSON object and nothing else:
{"next": "<target>", "instruction": "<directive for the target>", "rationale": "<one sentence>"}

"next" must be one of: %s`, strings.Join(names, ", "))
}

// Parse interprets raw model output. The first JSON object is read; its
// "next" field (or "next_target"/"target") must name one of the offered
// targets. Anything else is free text.
func Parse(content string, targets []routing.Target) Outcome {
	raw := extractJSON(content)
	if raw == "" {
		return FreeText(content)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return FreeText(content)
	}

	name := firstString(fields, "next", "next_target", "target")
	target, ok := routing.ParseTarget(name)
	if !ok || !offered(target, targets) {
		return FreeText(content)
	}
	return Route(routing.RouteDecision{
		Next:        target,
		Instruction: firstString(fields, "instruction"),
		Rationale:   firstString(fields, "rationale", "reasoning"),
	})
}

func offered(t routing.Target, targets []routing.Target) bool {
	for _, o := range targets {
		if o == t {
			return true
		}
	}
	return false
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

// extractJSON returns the first balanced {...} object in content, skipping
// braces inside string literals.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
