// Package confirm implements the confirmation gate: the explicit
// accept/decline checkpoint in front of every mutating external call.
//
// The gate stages an ActionContext at request time and hands the same value
// back on acceptance. It never reconstructs or re-derives action parameters,
// so the caller cannot confirm one thing and execute another.
package confirm

import (
	"fmt"
	"strings"

	"valet/internal/tools"
	"valet/internal/types"
)

// ActionContext is the sealed union of payloads a confirmation can gate.
// The concrete type says what kind of action is staged; Params always holds
// the exact parameters the tool call will use if confirmed.
type ActionContext interface {
	// isActionContext seals the interface to prevent external
	// implementations.
	isActionContext()

	// Tool returns the capability name the context will execute.
	Tool() string

	// Describe renders a human-readable description of the staged action.
	Describe() string
}

// Ensure all context types implement ActionContext.
func (EmailSendContext) isActionContext()        {}
func (CalendarMutationContext) isActionContext() {}
func (SelectionContext) isActionContext()        {}

// EmailSendContext stages an email send or reply.
type EmailSendContext struct {
	// ToolName is email.send or email.reply.
	ToolName string

	// Params is the fully-resolved send payload.
	Params tools.Params

	// DraftID links back to the staged draft, when the send came from one.
	DraftID string
}

// Tool returns the capability name.
func (c EmailSendContext) Tool() string { return c.ToolName }

// Describe renders the send for user review.
func (c EmailSendContext) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Send email to %s", c.Params[types.FieldTo])
	if cc := c.Params[types.FieldCc]; cc != "" {
		fmt.Fprintf(&b, " (cc %s)", cc)
	}
	if subject := c.Params[types.FieldSubject]; subject != "" {
		fmt.Fprintf(&b, " with subject %q", subject)
	}
	return b.String()
}

// CalendarMutationContext stages a calendar create, update, patch, or delete.
type CalendarMutationContext struct {
	// ToolName is one of the calendar.* mutating capabilities.
	ToolName string

	// Params is the fully-resolved mutation payload.
	Params tools.Params

	// DraftID links back to the staged draft, when the mutation came from one.
	DraftID string
}

// Tool returns the capability name.
func (c CalendarMutationContext) Tool() string { return c.ToolName }

// Describe renders the mutation for user review.
func (c CalendarMutationContext) Describe() string {
	switch c.ToolName {
	case tools.CalendarDelete:
		return fmt.Sprintf("Delete calendar event %s", c.Params[tools.ParamID])
	case tools.CalendarCreate:
		return fmt.Sprintf("Create event %q from %s to %s",
			c.Params[types.FieldSummary], c.Params[types.FieldStart], c.Params[types.FieldEnd])
	default:
		return fmt.Sprintf("Modify calendar event %s", c.Params[tools.ParamID])
	}
}

// SelectionContext stages a disambiguation among N candidate items. The user
// answers by typing the number of the chosen candidate; the resolution
// carries the chosen id alongside the untouched context.
type SelectionContext struct {
	// ToolName is the capability that will run against the chosen candidate.
	ToolName string

	// Params is the parameter template the chosen candidate id completes.
	Params tools.Params

	// CandidateIDs are the item ids the user is choosing between, in the
	// order they were presented.
	CandidateIDs []string

	// CandidateLabels are the display lines matching CandidateIDs.
	CandidateLabels []string
}

// Tool returns the capability name.
func (c SelectionContext) Tool() string { return c.ToolName }

// Describe renders the numbered candidate list.
func (c SelectionContext) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Which one? Reply with a number 1-%d:", len(c.CandidateIDs))
	for i, id := range c.CandidateIDs {
		label := id
		if i < len(c.CandidateLabels) {
			label = c.CandidateLabels[i]
		}
		fmt.Fprintf(&b, "\n  %d. %s", i+1, label)
	}
	return b.String()
}
