// Package mcpserver exposes the router to MCP clients over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/supervision"
)

// Router is the part of the supervisor the server needs.
type Router interface {
	HandleTurn(ctx context.Context, userText string, sess supervision.SessionContext) (string, error)
	Targets() []routing.Target
}

// Handlers serves the MCP tools.
type Handlers struct {
	router Router
	logger *logging.Logger
}

// New creates an MCP server with the ask and list_targets tools.
func New(router Router, version string) (*server.MCPServer, *Handlers) {
	s := server.NewMCPServer(
		"task-router",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	h := &Handlers{router: router, logger: logging.New().WithComponent("mcp")}

	s.AddTool(mcp.Tool{
		Name:        "ask",
		Description: "Ask the analytics router a question. It routes to portfolio, campaign or general specialists and the knowledge base, and returns the final answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The user question",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional caller session identifier, used for tracing only",
				},
			},
			Required: []string{"question"},
		},
	}, h.Ask)

	s.AddTool(mcp.Tool{
		Name:        "list_targets",
		Description: "List the specialists and lookup tools the router can dispatch to.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.ListTargets)

	return s, h
}

// Ask runs one turn.
func (h *Handlers) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	sessionID := request.GetString("session_id", "")

	answer, err := h.router.HandleTurn(ctx, question, supervision.SessionContext{SessionID: sessionID})
	if err != nil {
		var turnErr *supervision.TurnError
		if errors.As(err, &turnErr) {
			return mcp.NewToolResultError(turnErr.UserMessage), nil
		}
		if errors.Is(err, supervision.ErrEmptyQuestion) {
			return mcp.NewToolResultError("question must not be empty"), nil
		}
		h.logger.Error("turn failed", map[string]interface{}{"error": err.Error()})
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}
	return mcp.NewToolResultText(answer), nil
}

// ListTargets lists routing targets by kind.
func (h *Handlers) ListTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var agents, lookups []string
	for _, t := range h.router.Targets() {
		switch t.Kind() {
		case routing.KindSpecialist:
			agents = append(agents, t.String())
		case routing.KindTool:
			lookups = append(lookups, t.String())
		}
	}
	text := fmt.Sprintf("agents: %s\ntools: %s", strings.Join(agents, ", "), strings.Join(lookups, ", "))
	return mcp.NewToolResultText(text), nil
}

// Serve runs the server on stdio until ctx is done or the transport fails.
func Serve(ctx context.Context, s *server.MCPServer) error {
	errc := make(chan error, 1)
	go func() {
		errc <- server.ServeStdio(s)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
