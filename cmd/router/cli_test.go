package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func TestAskCmd_Basic(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := parser.Parse([]string{"ask", "how is account 17 doing?"})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Command() != "ask <question>" {
		t.Errorf("expected command 'ask <question>', got %q", ctx.Command())
	}
	if cli.Ask.Question != "how is account 17 doing?" {
		t.Errorf("unexpected question %q", cli.Ask.Question)
	}
	if cli.Ask.Verbose || cli.Ask.Quiet {
		t.Error("flags should default to false")
	}
}

func TestAskCmd_Flags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"ask", "-c", "custom.toml", "--session", "abc", "-v", "q"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Ask.Config != "custom.toml" || cli.Ask.Session != "abc" || !cli.Ask.Verbose {
		t.Errorf("unexpected flags %+v", cli.Ask)
	}
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse([]string{"ask"}); err == nil {
		t.Error("expected error without a question")
	}
}

func TestServeMCPCmd_Name(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := parser.Parse([]string{"serve-mcp", "--config", "router.toml"})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Command() != "serve-mcp" {
		t.Errorf("expected command 'serve-mcp', got %q", ctx.Command())
	}
	if cli.ServeMCP.Config != "router.toml" {
		t.Errorf("unexpected config %q", cli.ServeMCP.Config)
	}
}

func TestReplayCmd_Defaults(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"replay", "session.jsonl"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Replay.Session != "session.jsonl" {
		t.Errorf("expected session 'session.jsonl', got %q", cli.Replay.Session)
	}
	if cli.Replay.Width != 100 {
		t.Errorf("expected width 100, got %d", cli.Replay.Width)
	}
	if cli.Replay.Pager || cli.Replay.Follow || cli.Replay.SQLite {
		t.Error("expected pager, follow and sqlite off by default")
	}
}

func TestReplayCmd_Follow(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"replay", "-f", "--sqlite", "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if !cli.Replay.Follow || !cli.Replay.SQLite {
		t.Errorf("unexpected flags %+v", cli.Replay)
	}
}

func TestValidateCmd_OptionalConfig(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"validate"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Validate.Config != "" {
		t.Errorf("expected empty config, got %q", cli.Validate.Config)
	}
}

func TestInitCmd_DefaultOutput(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"init"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Init.Output != "router.toml" {
		t.Errorf("expected router.toml, got %q", cli.Init.Output)
	}
}
