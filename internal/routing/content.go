// Package routing holds the turn-scoped routing state shared between the
// supervisor and the specialist it dispatches.
package routing

import "strings"

// Content is the body of a conversation entry. A model response may come back
// as plain text or as a list of typed blocks (for example a tool-use block with
// no visible text), so both shapes are first-class. The set of implementations
// is closed: Text and Blocks.
type Content interface {
	isContent()
}

// Text is plain string content.
type Text string

func (Text) isContent() {}

// BlockKind identifies the type of a content block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockUnknown    BlockKind = "unknown"
)

// Block is one typed element of a Blocks content.
type Block struct {
	Kind     BlockKind
	Text     string
	ToolName string
	ToolArgs map[string]any
}

// Blocks is an ordered list of heterogeneous content blocks.
type Blocks []Block

func (Blocks) isContent() {}

// PlainText renders any content as text. Text is returned as-is; for Blocks
// the text of text and tool_result blocks is joined with newlines and all
// other blocks are skipped. Nil content yields "".
func PlainText(c Content) string {
	switch v := c.(type) {
	case Text:
		return string(v)
	case Blocks:
		parts := make([]string, 0, len(v))
		for _, b := range v {
			switch b.Kind {
			case BlockText, BlockToolResult:
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// HasToolUse reports whether the content carries a tool-use intent.
func HasToolUse(c Content) bool {
	blocks, ok := c.(Blocks)
	if !ok {
		return false
	}
	for _, b := range blocks {
		if b.Kind == BlockToolUse {
			return true
		}
	}
	return false
}
