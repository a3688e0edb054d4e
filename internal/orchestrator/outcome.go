package orchestrator

import (
	"fmt"
	"strings"

	"valet/internal/confirm"
	"valet/internal/draft"
	"valet/internal/tools"
	"valet/internal/types"
)

// Outcome is the sealed union of results a turn can produce. Callers switch
// on the concrete type; Text renders the conversational fallback for
// surfaces that only show prose.
type Outcome interface {
	isOutcome()
	Text() string
}

func (Reply) isOutcome()              {}
func (ToolResult) isOutcome()         {}
func (ConfirmationNeeded) isOutcome() {}
func (DraftUpdated) isOutcome()       {}

// Reply is a plain conversational answer with no side effect behind it.
type Reply struct {
	Message string
}

func (r Reply) Text() string { return r.Message }

// ToolResult carries a completed read-only call or an executed confirmed
// action. HasMore is true when a continuation cursor remains open.
type ToolResult struct {
	Result  *tools.Result
	HasMore bool

	// Note precedes the result rendering, e.g. an abandon notice.
	Note string
}

func (t ToolResult) Text() string {
	var b strings.Builder
	if t.Note != "" {
		b.WriteString(t.Note)
		b.WriteString("\n")
	}
	if len(t.Result.Items) == 0 {
		b.WriteString("No results.")
		return b.String()
	}
	for i, item := range t.Result.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Label)
	}
	if t.HasMore {
		b.WriteString(`Say "more" for the next page.`)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ConfirmationNeeded surfaces a staged action awaiting the user's decision.
type ConfirmationNeeded struct {
	Request *confirm.Request

	// Note precedes the prompt, e.g. an abandon notice.
	Note string
}

func (c ConfirmationNeeded) Text() string {
	prefix := ""
	if c.Note != "" {
		prefix = c.Note + "\n"
	}
	if c.Request.RequiresFreeform {
		return prefix + c.Request.Prompt
	}
	return prefix + c.Request.Prompt + "\nConfirm? (yes/no)"
}

// DraftUpdated reports the draft state after a create or update, including
// what is still missing before it can be sent.
type DraftUpdated struct {
	Draft      *draft.Draft
	Validation draft.Validation

	// Note precedes the draft rendering, e.g. an abandon notice.
	Note string
}

func (d DraftUpdated) Text() string {
	var b strings.Builder
	if d.Note != "" {
		b.WriteString(d.Note)
		b.WriteString("\n")
	}
	if d.Draft.Kind == draft.KindCalendarEvent {
		b.WriteString("Event draft")
	} else {
		b.WriteString("Email draft")
	}
	fmt.Fprintf(&b, " (%s)", d.Draft.Status)
	for _, field := range orderedFields(d.Draft) {
		fmt.Fprintf(&b, "\n  %s: %s", field, d.Draft.Fields[field])
	}
	if !d.Validation.IsComplete {
		names := make([]string, len(d.Validation.MissingFields))
		for i, f := range d.Validation.MissingFields {
			names[i] = string(f)
		}
		fmt.Fprintf(&b, "\nStill needed: %s", strings.Join(names, ", "))
	} else {
		b.WriteString("\nReady to go. Say \"send it\" when you are.")
	}
	return b.String()
}

// withNote prefixes a routing notice, like an abandoned confirmation, onto
// whatever outcome the turn produced.
func withNote(out Outcome, note string) Outcome {
	if note == "" {
		return out
	}
	switch o := out.(type) {
	case Reply:
		o.Message = note + "\n" + o.Message
		return o
	case ToolResult:
		o.Note = note
		return o
	case ConfirmationNeeded:
		o.Note = note
		return o
	case DraftUpdated:
		o.Note = note
		return o
	}
	return out
}

var (
	emailFieldOrder = []types.FieldName{types.FieldTo, types.FieldCc, types.FieldSubject, types.FieldBody}
	eventFieldOrder = []types.FieldName{types.FieldSummary, types.FieldStart, types.FieldEnd, types.FieldAttendees, types.FieldLocation, types.FieldDescription}
)

// orderedFields renders email fields in envelope order and event fields in
// schedule order, skipping fields the draft does not carry.
func orderedFields(d *draft.Draft) []types.FieldName {
	order := emailFieldOrder
	if d.Kind == draft.KindCalendarEvent {
		order = eventFieldOrder
	}
	out := make([]types.FieldName, 0, len(d.Fields))
	for _, f := range order {
		if _, ok := d.Fields[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
