// Package types defines the shared domain types for valet's orchestration
// core: the incoming Turn, field names for staged actions, and the transcript
// events emitted to external readers.
//
// Types here are intentionally dependency-free so every internal package can
// import them without cycles.
package types

import "time"

// Turn is one user input entering the orchestrator. Turns are ephemeral;
// the core does not persist them.
type Turn struct {
	// ThreadID identifies the conversation thread. Turns for the same
	// thread are serialized by the orchestrator.
	ThreadID string

	// MessageID uniquely identifies this user turn within the thread.
	MessageID string

	// Text is the raw natural-language input.
	Text string

	// Confirmation is set when this turn answers an outstanding
	// confirmation request instead of carrying new intent.
	Confirmation *ConfirmationResponse
}

// ConfirmationResponse is the user's answer to a pending confirmation.
// Either Accept is meaningful (button-style accept/decline) or Selection
// carries the freeform numeric choice, never both.
type ConfirmationResponse struct {
	Accept    bool
	Selection string
}

// FieldName names a draft or tool parameter field.
type FieldName string

// Email draft fields.
const (
	FieldTo      FieldName = "to"
	FieldCc      FieldName = "cc"
	FieldSubject FieldName = "subject"
	FieldBody    FieldName = "body"
)

// Calendar event fields.
const (
	FieldSummary     FieldName = "summary"
	FieldStart       FieldName = "start"
	FieldEnd         FieldName = "end"
	FieldAttendees   FieldName = "attendees"
	FieldLocation    FieldName = "location"
	FieldDescription FieldName = "description"
)

// EventKind classifies a transcript event.
type EventKind string

const (
	EventTurnReceived  EventKind = "turn_received"
	EventOutcome       EventKind = "outcome"
	EventDraftChanged  EventKind = "draft_changed"
	EventConfirmOpened EventKind = "confirm_opened"
	EventConfirmClosed EventKind = "confirm_closed"
	EventAnchorChanged EventKind = "anchor_changed"
)

// ThreadEvent is one entry in a thread's transcript. Seq is a monotonic
// per-thread marker (lexicographically ordered ULID) sufficient for an
// external reader to reconstruct submission order.
type ThreadEvent struct {
	ThreadID  string
	Seq       string
	Kind      EventKind
	Payload   string
	CreatedAt time.Time
}

// ConversationTurn is one prior exchange fed to the intent classifier as
// conversational context.
type ConversationTurn struct {
	Role string // "user" or "assistant"
	Text string
}
