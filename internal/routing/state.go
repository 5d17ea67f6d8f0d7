package routing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies who authored a conversation entry.
type Role string

const (
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
	RoleToolResult Role = "tool-result"
)

// Message is one conversation entry.
type Message struct {
	Role    Role
	Source  string
	Content Content
}

// SpecialistResponse is the final text of one specialist invocation.
type SpecialistResponse struct {
	Source Target
	Text   string
}

// LookupResponse is the payload of one lookup tool invocation.
type LookupResponse struct {
	Tool    Target
	Payload string
}

// RouteDecision is produced once per routing step and discarded after it.
type RouteDecision struct {
	Next        Target
	Instruction string
	Rationale   string
}

// ErrNotSpecialist is returned when a non-specialist target tries to write a
// specialist response.
var ErrNotSpecialist = errors.New("only specialists may append specialist responses")

// State is the single mutable record threaded through one user turn.
// It is owned by the goroutine running the turn and is not safe for
// concurrent mutation.
type State struct {
	TurnID       string
	Conversation []Message
	NextTarget   Target
	RoutingSteps int
	Diagnostics  []string

	userQuestion        string
	currentInstruction  string
	specialistResponses []SpecialistResponse
	lookupResponses     []LookupResponse
	loopMarkers         map[Target]struct{}
}

// NewState creates the state for a new turn. Prior history, if any, is
// placed ahead of the user's question.
func NewState(question string, history []Message) *State {
	conv := make([]Message, 0, len(history)+1)
	conv = append(conv, history...)
	conv = append(conv, Message{Role: RoleUser, Source: "user", Content: Text(question)})
	return &State{
		TurnID:       uuid.New().String(),
		Conversation: conv,
		userQuestion: question,
		loopMarkers:  make(map[Target]struct{}),
	}
}

// UserQuestion returns the original input text.
func (s *State) UserQuestion() string { return s.userQuestion }

// SetInstruction records the directive for the next dispatched target.
func (s *State) SetInstruction(instruction string, next Target) {
	s.currentInstruction = instruction
	s.NextTarget = next
}

// ConsumeInstruction returns the pending instruction and clears it.
func (s *State) ConsumeInstruction() string {
	instr := s.currentInstruction
	s.currentInstruction = ""
	return instr
}

// PendingInstruction returns the current instruction without clearing it.
func (s *State) PendingInstruction() string { return s.currentInstruction }

// AppendSpecialistResponse records a specialist's final text.
func (s *State) AppendSpecialistResponse(source Target, text string) error {
	if source.Kind() != KindSpecialist {
		return fmt.Errorf("%w: %s", ErrNotSpecialist, source)
	}
	s.specialistResponses = append(s.specialistResponses, SpecialistResponse{Source: source, Text: text})
	return nil
}

// SpecialistResponses returns a copy of the accumulated specialist output.
func (s *State) SpecialistResponses() []SpecialistResponse {
	out := make([]SpecialistResponse, len(s.specialistResponses))
	copy(out, s.specialistResponses)
	return out
}

// AppendLookupResponse records a lookup tool payload.
func (s *State) AppendLookupResponse(tool Target, payload string) {
	s.lookupResponses = append(s.lookupResponses, LookupResponse{Tool: tool, Payload: payload})
}

// LookupResponses returns a copy of the accumulated lookup payloads.
func (s *State) LookupResponses() []LookupResponse {
	out := make([]LookupResponse, len(s.lookupResponses))
	copy(out, s.lookupResponses)
	return out
}

// LastLookup returns the most recent lookup payload.
func (s *State) LastLookup() (LookupResponse, bool) {
	if len(s.lookupResponses) == 0 {
		return LookupResponse{}, false
	}
	return s.lookupResponses[len(s.lookupResponses)-1], true
}

// MarkInvoked adds a loop marker for the target.
func (s *State) MarkInvoked(t Target) { s.loopMarkers[t] = struct{}{} }

// WasInvoked reports whether a loop marker exists for the target.
func (s *State) WasInvoked(t Target) bool {
	_, ok := s.loopMarkers[t]
	return ok
}

// AddDiagnostic records a turn-level diagnostic note.
func (s *State) AddDiagnostic(msg string) {
	s.Diagnostics = append(s.Diagnostics, msg)
}

// AppendConversation adds entries produced by a dispatched step.
func (s *State) AppendConversation(msgs ...Message) {
	s.Conversation = append(s.Conversation, msgs...)
}

// Snapshot returns a copy of the conversation for a specialist to read.
func (s *State) Snapshot() []Message {
	out := make([]Message, len(s.Conversation))
	copy(out, s.Conversation)
	return out
}
