package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/analytics"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/config"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/console"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/guidance"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/knowledge"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/mcpserver"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/session"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/setup"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/supervision"
)

// Run answers one question.
func (c *AskCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []events.Sink
	if !c.Quiet {
		sinks = append(sinks, console.NewPrinter(os.Stderr, console.WithVerbose(c.Verbose)))
	}
	rt, err := startRuntime(ctx, c.Config, c.Session, sinks...)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	answer, err := rt.supervisor.HandleTurn(ctx, c.Question, supervision.SessionContext{SessionID: rt.sessionID})
	if err != nil {
		return turnFailure(err)
	}
	// The printer already showed the answer on an interactive terminal.
	if c.Quiet || !isTerminal(os.Stdout) || !isTerminal(os.Stderr) {
		fmt.Println(answer)
	}
	return nil
}

// Run reads questions line by line until EOF or "exit".
func (c *ChatCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := console.NewPrinter(os.Stdout, console.WithVerbose(c.Verbose))
	rt, err := startRuntime(ctx, c.Config, c.Session, printer)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	fmt.Fprintf(os.Stderr, "session %s (type exit to quit)\n", rt.sessionID)
	return chatLoop(ctx, rt.supervisor, rt.sessionID, os.Stdin, os.Stderr, isTerminal(os.Stdin))
}

// turnHandler is the part of the supervisor the chat loop needs.
type turnHandler interface {
	HandleTurn(ctx context.Context, userText string, sess supervision.SessionContext) (string, error)
}

// chatLoop runs one turn per input line. Turn failures are reported and the
// loop continues; each turn starts from a fresh routing state.
func chatLoop(ctx context.Context, h turnHandler, sessionID string, in io.Reader, errOut io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(errOut, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if _, err := h.HandleTurn(ctx, line, supervision.SessionContext{SessionID: sessionID}); err != nil {
			fmt.Fprintf(errOut, "✗ %v\n", turnFailure(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// turnFailure surfaces the user-facing message of a failed turn.
func turnFailure(err error) error {
	var turnErr *supervision.TurnError
	if errors.As(err, &turnErr) {
		return fmt.Errorf("%s (%w)", turnErr.UserMessage, turnErr.Err)
	}
	return err
}

// Run serves the MCP tools on stdio. Stdout carries the protocol, so no
// console printer is attached.
func (c *ServeMCPCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := startRuntime(ctx, c.Config, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	srv, _ := mcpserver.New(rt.supervisor, version)
	fmt.Fprintf(os.Stderr, "serving MCP on stdio (session %s)\n", rt.sessionID)
	return mcpserver.Serve(ctx, srv)
}

// Run renders the session timeline.
func (c *ReplayCmd) Run() error {
	load, watchPath, err := c.source()
	if err != nil {
		return err
	}
	render := func(width int) (string, error) {
		rec, err := load()
		if err != nil {
			return "", err
		}
		return console.Render(rec.ID, rec.Turns(), width), nil
	}

	title := "Session " + c.Session
	switch {
	case c.Follow:
		return console.Follow(title, watchPath, render)
	case c.Pager:
		return console.Page(title, render)
	}
	out, err := render(c.Width)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// source resolves where the recording lives and returns a loader for it
// plus the file to watch in follow mode.
func (c *ReplayCmd) source() (func() (*session.Recording, error), string, error) {
	if !c.SQLite {
		if strings.HasSuffix(c.Session, ".jsonl") || fileExists(c.Session) {
			path := c.Session
			return func() (*session.Recording, error) { return session.Load(path) }, path, nil
		}
	}

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	dir := cfg.StoragePath()

	if c.SQLite || cfg.Storage.Recorder == session.KindSQLite {
		path := filepath.Join(dir, "sessions.db")
		id := c.Session
		return func() (*session.Recording, error) {
			return session.LoadSQLite(context.Background(), path, id)
		}, path, nil
	}

	path := filepath.Join(dir, "sessions", c.Session+".jsonl")
	if !fileExists(path) {
		return nil, "", fmt.Errorf("session not found: %s", c.Session)
	}
	return func() (*session.Recording, error) { return session.Load(path) }, path, nil
}

// Run checks the config and every file it references.
func (c *ValidateCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Config: %v\n", err)
		return err
	}
	fmt.Println("✓ Config")

	if err := validateFiles(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return err
	}
	fmt.Println("✓ Valid")
	return nil
}

// validateFiles loads the dataset, seed documents and guidance directory
// named by cfg, reporting what it found.
func validateFiles(cfg *config.Config, out io.Writer) error {
	if path := cfg.Analytics.Path; path != "" {
		ds, err := analytics.Load(config.ExpandHome(path))
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		fmt.Fprintf(out, "✓ Dataset: %d accounts, %d campaigns\n", len(ds.Accounts), len(ds.Campaigns))
	}
	if path := cfg.Knowledge.Seed; path != "" {
		docs, err := knowledge.LoadDocs(config.ExpandHome(path))
		if err != nil {
			return fmt.Errorf("knowledge seed: %w", err)
		}
		fmt.Fprintf(out, "✓ Knowledge seed: %d documents\n", len(docs))
	}
	if dir := cfg.Guidance.Dir; dir != "" {
		store, err := guidance.NewStore(config.ExpandHome(dir))
		if err != nil {
			return fmt.Errorf("guidance: %w", err)
		}
		fmt.Fprintf(out, "✓ Guidance: %d documents\n", store.Count())
	}
	return nil
}

// Run launches the setup wizard.
func (c *InitCmd) Run() error {
	return setup.Run(c.Output)
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("router version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
