package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/normalize"
)

const (
	// ToolName is the name the lookup target is registered under.
	ToolName = "semantic_search"

	// DefaultLimit is the number of hits returned when none is requested.
	DefaultLimit = 5

	maxLimit     = 20
	snippetRunes = 240
	noResults    = "No matching documents found."
)

// SearchTool exposes an Index as the semantic_search tool.
type SearchTool struct {
	index *Index
}

// NewSearchTool creates the lookup tool.
func NewSearchTool(index *Index) *SearchTool {
	return &SearchTool{index: index}
}

func (t *SearchTool) Name() string { return ToolName }

func (t *SearchTool) Description() string {
	return "Search the knowledge base of guides and definitions. Returns matching documents, not an answer."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look up",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of documents",
				"default":     DefaultLimit,
			},
		},
		"required": []string{"query"},
	}
}

// Execute runs the search. Arguments are read through the normalize
// accessors a second time.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	q := normalize.String(args, "query", "")
	if strings.TrimSpace(q) == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := normalize.Int(args, "limit", DefaultLimit)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	hits, err := t.index.Search(ctx, q, limit)
	if err != nil {
		return "", err
	}
	return FormatHits(hits), nil
}

// FormatHits renders hits as a numbered list.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return noResults
	}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n")
		}
		title := h.Title
		if title == "" {
			title = h.ID
		}
		fmt.Fprintf(&b, "%d. %s", i+1, title)
		if h.Source != "" {
			fmt.Fprintf(&b, " (%s)", h.Source)
		}
		if s := snippet(h.Body); s != "" {
			fmt.Fprintf(&b, "\n   %s", s)
		}
	}
	return b.String()
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	r := []rune(body)
	if len(r) <= snippetRunes {
		return body
	}
	return string(r[:snippetRunes]) + "..."
}
