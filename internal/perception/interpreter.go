package perception

import (
	"context"

	"valet/internal/draft"
	"valet/internal/tools"
	"valet/internal/types"
)

// DraftDirective is the interpreter's verdict on a turn while a draft is
// anchored: is the user editing the draft, sending it, dropping it, or
// asking for something unrelated?
type DraftDirective string

const (
	// DirectiveNone means the turn is not about the anchored draft; the
	// router classifies it as a fresh request.
	DirectiveNone DraftDirective = "none"

	DirectiveUpdate  DraftDirective = "update"
	DirectiveSend    DraftDirective = "send"
	DirectiveDiscard DraftDirective = "discard"
)

// WriteOp is the concrete mutating operation behind a create/send sub-intent.
type WriteOp string

const (
	OpCompose     WriteOp = "compose"      // new email draft
	OpReply       WriteOp = "reply"        // email reply draft
	OpCreateEvent WriteOp = "create_event" // new calendar event draft
	OpUpdateEvent WriteOp = "update_event" // mutation of an existing event, gated
	OpDelete      WriteOp = "delete"       // direct mutating call, gated
)

// WriteIntent is the structured form of a mutating request.
type WriteIntent struct {
	Op WriteOp

	// Kind is the draft kind for draft-producing ops.
	Kind draft.Kind

	// Deltas seeds or updates draft fields extracted from the turn.
	Deltas map[types.FieldName]string

	// Tool is the capability for direct ops (deletes, event updates).
	Tool string

	// Query locates the target of a direct op when no anchor names it.
	Query string
}

// Interpreter extracts structured arguments from a turn once the router has
// chosen a route. Like the classifier it is an external NL capability; the
// router treats it as a black box.
type Interpreter interface {
	// InterpretDraftTurn decides what a turn means for the anchored draft.
	InterpretDraftTurn(ctx context.Context, history []types.ConversationTurn, text string, kind draft.Kind) (DraftDirective, map[types.FieldName]string, error)

	// InterpretWriteTurn maps a create/send sub-intent onto a concrete
	// mutating operation.
	InterpretWriteTurn(ctx context.Context, history []types.ConversationTurn, text string, label Label) (WriteIntent, error)

	// ExtractReadCall maps a search/read sub-intent onto a read-only tool
	// call.
	ExtractReadCall(ctx context.Context, history []types.ConversationTurn, text string, label Label) (string, tools.Params, error)
}
