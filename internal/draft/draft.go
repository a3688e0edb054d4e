// Package draft owns the lifecycle of staged mutating actions (emails and
// calendar events) before execution: creation, field accumulation,
// validation, send via the confirmation gate, or discard.
//
// Lifecycle:
//
//	Open ⇄ Complete → Sent
//	     ↘ Discarded
//
// Status is recomputed after every field merge: a draft is Complete iff every
// required field for its kind (adjusted for reply context) is non-empty.
package draft

import (
	"time"

	"valet/internal/types"
)

// Kind says what external action the draft stages.
type Kind string

const (
	KindEmail         Kind = "email"
	KindCalendarEvent Kind = "calendar_event"
)

// Status is the draft lifecycle state.
type Status string

const (
	// StatusOpen means required fields are still missing.
	StatusOpen Status = "open"

	// StatusComplete means every required field is filled; the draft can
	// be sent.
	StatusComplete Status = "complete"

	// StatusSent is terminal: the gated action executed successfully.
	StatusSent Status = "sent"

	// StatusDiscarded is terminal: the user cancelled the draft.
	StatusDiscarded Status = "discarded"
)

// ReplyContext marks an email draft as a reply to an existing message.
// Setting it changes the required-field set: subject becomes optional
// (inherited from the source thread) and recipients are pre-populated.
type ReplyContext struct {
	// SourceThreadRef identifies the external mail thread being replied to.
	SourceThreadRef string

	// SourceItemRef identifies the specific message being replied to.
	SourceItemRef string

	// To and Cc are the recipients inherited from the source message.
	To string
	Cc string
}

// Draft is a staged mutating action under construction.
type Draft struct {
	// ID is opaque and globally unique per thread.
	ID string

	Kind Kind

	// ThreadID is the owning conversation thread.
	ThreadID string

	// OriginMessageID is the user turn that spawned the draft, used for
	// the message→draft reverse lookup when restoring anchors.
	OriginMessageID string

	// Fields holds the accumulated values. Unset fields are absent;
	// insertion order is irrelevant.
	Fields map[types.FieldName]string

	// Reply is set for email replies and adjusts the required-field set.
	Reply *ReplyContext

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate engine state.
func (d *Draft) Clone() *Draft {
	out := *d
	out.Fields = make(map[types.FieldName]string, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	if d.Reply != nil {
		reply := *d.Reply
		out.Reply = &reply
	}
	return &out
}

// Terminal reports whether the draft reached a terminal status.
func (d *Draft) Terminal() bool {
	return d.Status == StatusSent || d.Status == StatusDiscarded
}

// Snapshot returns the denormalized display fields for anchoring.
func (d *Draft) Snapshot() map[string]string {
	snap := map[string]string{
		"kind":   string(d.Kind),
		"status": string(d.Status),
	}
	for k, v := range d.Fields {
		snap[string(k)] = v
	}
	if d.Reply != nil {
		snap["in_reply_to"] = d.Reply.SourceItemRef
	}
	return snap
}
