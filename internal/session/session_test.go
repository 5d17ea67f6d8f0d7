package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
)

func sampleEvents() []events.Event {
	now := time.Now().UTC().Truncate(time.Second)
	return []events.Event{
		{Seq: 1, TurnID: "t1", Type: events.StepStarted, Target: "portfolio_agent", Kind: events.KindSpecialist, Step: 1, Timestamp: now},
		{Seq: 2, TurnID: "t1", Type: events.ToolInvoked, Target: "portfolio_agent", Step: 1, CallID: "c1", Tool: "portfolio_summary", ArgumentsSummary: "account_id=17", Timestamp: now},
		{Seq: 3, TurnID: "t1", Type: events.TurnFinished, Text: "Account 17 is up.", Timestamp: now},
		{Seq: 1, TurnID: "t2", Type: events.TurnFinished, Text: "Hello.", Timestamp: now},
	}
}

func TestFileRecorder_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, ev := range sampleEvents() {
		if err := rec.Publish(context.Background(), ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	loaded, err := Load(rec.Path())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != "s1" || loaded.CreatedAt.IsZero() {
		t.Errorf("header = %q %v", loaded.ID, loaded.CreatedAt)
	}
	if len(loaded.Events) != 4 {
		t.Fatalf("events = %d", len(loaded.Events))
	}
	if got := loaded.Events[1]; got.Tool != "portfolio_summary" || got.ArgumentsSummary != "account_id=17" {
		t.Errorf("event = %+v", got)
	}

	turns := loaded.Turns()
	if len(turns) != 2 || len(turns[0]) != 3 || turns[1][0].Text != "Hello." {
		t.Errorf("turns = %+v", turns)
	}
}

func TestFileRecorder_AppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		rec, err := NewFileRecorder(dir, "s1")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		rec.Publish(context.Background(), events.Event{TurnID: "t", Type: events.TurnFinished, Text: "x"})
		rec.Close()
	}
	data, err := os.ReadFile(filepath.Join(dir, "s1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), `"_type":"header"`); n != 1 {
		t.Errorf("header lines = %d", n)
	}
	if n := strings.Count(string(data), `"_type":"event"`); n != 2 {
		t.Errorf("event lines = %d", n)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	os.WriteFile(path, []byte("{not json}\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_NoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	body := `{"_type":"header","id":"s"}` + "\n" + `{"_type":"event","turn_id":"t","type":"turn_finished","text":"done","seq":1,"timestamp":"2026-01-01T00:00:00Z"}`
	os.WriteFile(path, []byte(body), 0644)
	rec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Events) != 1 || rec.Events[0].Text != "done" {
		t.Errorf("events = %+v", rec.Events)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	ids, err := List(filepath.Join(dir, "none"))
	if err != nil || ids != nil {
		t.Errorf("missing dir: %v %v", ids, err)
	}

	for _, id := range []string{"a", "b"} {
		rec, err := NewFileRecorder(dir, id)
		if err != nil {
			t.Fatal(err)
		}
		rec.Close()
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	ids, err = List(dir)
	if err != nil || len(ids) != 2 {
		t.Errorf("ids = %v, err = %v", ids, err)
	}
}

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	rec, err := NewSQLiteRecorder(path, "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	for _, ev := range sampleEvents() {
		if err := rec.Publish(ctx, ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	loaded, err := rec.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Events) != 4 {
		t.Fatalf("events = %d", len(loaded.Events))
	}
	if got := loaded.Events[1]; got.Type != events.ToolInvoked || got.CallID != "c1" || got.Step != 1 {
		t.Errorf("event = %+v", got)
	}
	if _, err := rec.Load(ctx, "missing"); err == nil {
		t.Error("expected not found error")
	}

	ids, err := rec.Sessions(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("sessions = %v, err = %v", ids, err)
	}
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	if _, err := LoadSQLite(context.Background(), path, "s1"); err == nil {
		t.Fatal("expected error for missing database")
	}

	rec, err := NewSQLiteRecorder(path, "s1")
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range sampleEvents() {
		rec.Publish(context.Background(), ev)
	}
	rec.Close()

	loaded, err := LoadSQLite(context.Background(), path, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Events) != 4 || len(loaded.Turns()) != 2 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	rec, err := Open(KindNone, dir, "s")
	if err != nil || rec != nil {
		t.Errorf("none: %v %v", rec, err)
	}

	rec, err = Open(KindFile, dir, "s")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	rec.Close()
	if _, err := os.Stat(filepath.Join(dir, "sessions", "s.jsonl")); err != nil {
		t.Errorf("file recorder path: %v", err)
	}

	rec, err = Open(KindSQLite, dir, "s")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	rec.Close()

	if _, err := Open("postgres", dir, "s"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
