package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/llm"
)

// capture records the last request body and replies with body.
func server(t *testing.T, reply string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresKeyOrBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without key or base URL")
	}
	p, err := New(Config{BaseURL: "http://localhost:11434/v1"})
	if err != nil {
		t.Fatalf("local base URL should not need a key: %v", err)
	}
	if p.model != DefaultModel || p.Name() != "openai-compat" {
		t.Errorf("provider = %+v", p)
	}
}

func TestChat_TextResponse(t *testing.T) {
	var body map[string]any
	srv := server(t, `{"model":"m1","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`, &body)
	p, err := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m1"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		Tools:    []llm.ToolDef{{Name: "semantic_search", Description: "search", Parameters: map[string]interface{}{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hello" || resp.StopReason != "stop" || resp.InputTokens != 7 || resp.OutputTokens != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if body["model"] != "m1" {
		t.Errorf("request model = %v", body["model"])
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools in request = %v", body["tools"])
	}
}

func TestChat_ToolCalls(t *testing.T) {
	reply := `{"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[
		{"id":"c1","type":"function","function":{"name":"portfolio_summary","arguments":"{\"account_id\":[\"17\"]}"}},
		{"id":"c2","type":"function","function":{"name":"campaign_list","arguments":"not json"}}
	]}}]}`
	srv := server(t, reply, nil)
	p, _ := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1"})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "q"}}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	ids, ok := resp.ToolCalls[0].Args["account_id"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "17" {
		t.Errorf("args passed through unchanged for the normalizer, got %#v", resp.ToolCalls[0].Args)
	}
	if len(resp.ToolCalls[1].Args) != 0 {
		t.Errorf("malformed arguments should become empty, got %v", resp.ToolCalls[1].Args)
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := server(t, `{"choices":[]}`, nil)
	p, _ := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	if _, err := p.Chat(context.Background(), llm.ChatRequest{}); !errors.Is(err, ErrNoChoices) {
		t.Errorf("err = %v", err)
	}
}

func TestToMessages_ToolRoundTrip(t *testing.T) {
	msgs := toMessages([]llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCallResponse{{ID: "c1", Name: "t", Args: map[string]interface{}{"a": 1}}}},
		{Role: "tool", ToolCallID: "c1", Content: "result"},
	})
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Arguments != `{"a":1}` {
		t.Errorf("assistant message = %+v", msgs[0])
	}
	if msgs[1].ToolCallID != "c1" || msgs[1].Role != "tool" {
		t.Errorf("tool message = %+v", msgs[1])
	}
}
