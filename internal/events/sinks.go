package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

// Events returns a snapshot of recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns the recorded events of one type.
func (s *MemorySink) OfType(t Type) []Event {
	var out []Event
	for _, ev := range s.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ChanSink forwards events to a channel for a streaming caller. Publish
// blocks until the event is accepted or ctx is done.
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a channel sink with the given buffer.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

func (s *ChanSink) Publish(ctx context.Context, ev Event) error {
	select {
	case s.C <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fanout publishes to several sinks, joining their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is the subset of a NATS connection the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes JSON-encoded events on <prefix>.<turn_id>.
type NATSSink struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "router.events"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// DialNATS connects to a NATS server and returns a sink owning the
// connection.
func DialNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("agent-router"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	s := NewNATSSink(nc, prefix)
	s.conn = nc
	return s, nil
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(ev Event) string {
	return s.prefix + "." + ev.TurnID
}

func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.pub.Publish(s.Subject(ev), data)
}

// Close drains the owned connection, if any.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
