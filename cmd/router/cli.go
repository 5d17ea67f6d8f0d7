// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Ask      AskCmd      `cmd:"" help:"Answer one question and exit"`
	Chat     ChatCmd     `cmd:"" help:"Interactive question loop"`
	ServeMCP ServeMCPCmd `cmd:"" name:"serve-mcp" help:"Serve the router as an MCP tool over stdio"`
	Replay   ReplayCmd   `cmd:"" help:"Render a recorded session timeline"`
	Validate ValidateCmd `cmd:"" help:"Validate configuration, dataset and guidance"`
	Init     InitCmd     `cmd:"" help:"Interactive wizard that writes router.toml"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// AskCmd runs a single turn.
type AskCmd struct {
	Question string `arg:"" help:"Question to answer"`
	Config   string `short:"c" help:"Config file path (default ./router.toml)"`
	Session  string `help:"Session ID to record under (default: generated)"`
	Verbose  bool   `short:"v" help:"Show specialist content as it streams"`
	Quiet    bool   `short:"q" help:"Print only the final answer"`
}

// ChatCmd runs turns read from stdin until EOF.
type ChatCmd struct {
	Config  string `short:"c" help:"Config file path (default ./router.toml)"`
	Session string `help:"Session ID to record under (default: generated)"`
	Verbose bool   `short:"v" help:"Show specialist content as it streams"`
}

// ServeMCPCmd exposes the router to MCP clients.
type ServeMCPCmd struct {
	Config string `short:"c" help:"Config file path (default ./router.toml)"`
}

// ReplayCmd renders a recorded session.
type ReplayCmd struct {
	Session string `arg:"" help:"Session ID or path to a .jsonl recording"`
	Config  string `short:"c" help:"Config file path (default ./router.toml)"`
	SQLite  bool   `name:"sqlite" help:"Read the session from the SQLite recorder"`
	Pager   bool   `help:"Open the timeline in an interactive pager"`
	Follow  bool   `short:"f" help:"Keep the pager open and refresh as the recording grows"`
	Width   int    `default:"100" help:"Render width when not paging"`
}

// ValidateCmd checks the configuration and the files it points at.
type ValidateCmd struct {
	Config string `arg:"" optional:"" help:"Config file path (default ./router.toml)"`
}

// InitCmd runs the setup wizard.
type InitCmd struct {
	Output string `short:"o" default:"router.toml" help:"Config file to write"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
