// Package session records the event stream of a chat session for later
// replay and forensics. It never feeds recorded turns back into routing.
package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
)

// Recorder kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindNone   = "none"
)

// JSONL record types
const (
	RecordTypeHeader = "header" // Session metadata (first line)
	RecordTypeEvent  = "event"  // One stream event
)

// Recorder is an event sink backed by durable storage.
type Recorder interface {
	events.Sink
	io.Closer
}

// Recording is a session read back from storage.
type Recording struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Events    []events.Event `json:"events"`
}

// Turns groups events by turn ID in order of first appearance.
func (r *Recording) Turns() [][]events.Event {
	var order []string
	byTurn := make(map[string][]events.Event)
	for _, ev := range r.Events {
		if _, ok := byTurn[ev.TurnID]; !ok {
			order = append(order, ev.TurnID)
		}
		byTurn[ev.TurnID] = append(byTurn[ev.TurnID], ev)
	}
	out := make([][]events.Event, 0, len(order))
	for _, id := range order {
		out = append(out, byTurn[id])
	}
	return out
}

// Record is one JSONL line.
type Record struct {
	RecordType string `json:"_type"`

	// Header fields
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Event fields
	*events.Event `json:",omitempty"`
}

// NewID returns a random session ID.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Open creates the recorder configured by kind under dir. KindNone and an
// empty kind return a nil recorder.
func Open(kind, dir, sessionID string) (Recorder, error) {
	switch kind {
	case KindFile:
		r, err := NewFileRecorder(filepath.Join(dir, "sessions"), sessionID)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindSQLite:
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		r, err := NewSQLiteRecorder(filepath.Join(dir, "sessions.db"), sessionID)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown recorder %q", kind)
	}
}

// FileRecorder appends events to <dir>/<session>.jsonl as they arrive.
type FileRecorder struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFileRecorder opens (or creates) the session file. A header line is
// written when the file is new.
func NewFileRecorder(dir, sessionID string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	r := &FileRecorder{f: f, path: path}
	if os.IsNotExist(statErr) {
		if err := r.writeLine(Record{RecordType: RecordTypeHeader, ID: sessionID, CreatedAt: time.Now()}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Path returns the file being written.
func (r *FileRecorder) Path() string { return r.path }

// Publish appends one event line.
func (r *FileRecorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLine(Record{RecordType: RecordTypeEvent, Event: &ev})
}

func (r *FileRecorder) writeLine(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.f.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close closes the file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// Load reads a JSONL recording.
func Load(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec := &Recording{ID: strings.TrimSuffix(filepath.Base(path), ".jsonl")}

	// bufio.Reader has no line length limit, unlike Scanner
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if parseErr := parseLine(trimmed, rec); parseErr != nil {
				return nil, parseErr
			}
		}
		if err == io.EOF {
			break
		}
	}
	return rec, nil
}

func parseLine(line []byte, rec *Recording) error {
	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch record.RecordType {
	case RecordTypeHeader:
		rec.ID = record.ID
		rec.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			rec.Events = append(rec.Events, *record.Event)
		}
	}
	return nil
}

// List returns the session IDs recorded under dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{id: strings.TrimSuffix(e.Name(), ".jsonl"), mod: info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod.After(items[j].mod) })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
