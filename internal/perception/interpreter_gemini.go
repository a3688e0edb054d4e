package perception

import (
	"context"
	"encoding/json"
	"fmt"

	"valet/internal/draft"
	"valet/internal/logging"
	"valet/internal/tools"
	"valet/internal/types"
)

// GeminiInterpreter extracts structured arguments with the Gemini API and
// falls back to the heuristic interpreter when a call fails or returns
// something unusable. Degraded extraction is better than a dead turn.
type GeminiInterpreter struct {
	classifier *GeminiClassifier
	fallback   *HeuristicInterpreter
}

// NewGeminiInterpreter shares the classifier's client so the two NL
// capabilities are configured once.
func NewGeminiInterpreter(classifier *GeminiClassifier) *GeminiInterpreter {
	return &GeminiInterpreter{
		classifier: classifier,
		fallback:   NewHeuristicInterpreter(),
	}
}

const draftTurnSystemPrompt = `A user is editing a draft with a personal assistant.
Answer with JSON only:
{"directive": "...", "deltas": {"field": "value"}}
directive must be one of:
  "update"  - the message changes draft fields; put the changes in deltas
  "send"    - the user wants the draft sent or the event created
  "discard" - the user wants the draft thrown away
  "none"    - the message is about something else entirely
Valid email fields: to, cc, subject, body.
Valid event fields: summary, start, end, attendees, location, description.
An empty string value clears a field. Omit deltas unless directive is "update".`

const writeTurnSystemPrompt = `A user asked a personal assistant to create, change, or delete something.
Answer with JSON only:
{"op": "...", "deltas": {"field": "value"}, "query": "..."}
op must be one of:
  "compose"      - draft a new email
  "reply"        - draft a reply to an existing email
  "create_event" - draft a new calendar event
  "update_event" - change an existing calendar event (reschedule, move, rename)
  "delete"       - delete an email or cancel a calendar event
deltas holds any field values stated in the message (email: to, cc, subject,
body; event: summary, start, end, attendees, location, description).
query identifies the target item for "delete" and "update_event"; omit it
otherwise.`

const readTurnSystemPrompt = `A user asked a personal assistant to find or look at something.
Answer with JSON only: {"tool": "...", "params": {"name": "value"}}
tool must be one of: email.search, email.get, calendar.search, contacts.search.
Valid params: query (search terms), id (a specific item the conversation
already identified), time_min and time_max (RFC 3339, calendar.search only).
Prefer query unless the conversation names a concrete item id.`

func (g *GeminiInterpreter) InterpretDraftTurn(ctx context.Context, history []types.ConversationTurn, text string, kind draft.Kind) (DraftDirective, map[types.FieldName]string, error) {
	raw, err := g.classifier.complete(ctx, draftTurnSystemPrompt, renderPrompt(history, text))
	if err != nil {
		logging.PerceptionWarn("draft turn interpretation failed, using heuristics: %v", err)
		return g.fallback.InterpretDraftTurn(ctx, history, text, kind)
	}

	var resp struct {
		Directive string            `json:"directive"`
		Deltas    map[string]string `json:"deltas"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		logging.PerceptionWarn("unparseable draft directive %q, using heuristics: %v", raw, err)
		return g.fallback.InterpretDraftTurn(ctx, history, text, kind)
	}

	switch DraftDirective(resp.Directive) {
	case DirectiveSend:
		return DirectiveSend, nil, nil
	case DirectiveDiscard:
		return DirectiveDiscard, nil, nil
	case DirectiveNone:
		return DirectiveNone, nil, nil
	case DirectiveUpdate:
		deltas := make(map[types.FieldName]string, len(resp.Deltas))
		for k, v := range resp.Deltas {
			if field, ok := fieldForWord(k, kind); ok {
				deltas[field] = v
			}
		}
		if len(deltas) == 0 {
			return DirectiveNone, nil, nil
		}
		return DirectiveUpdate, deltas, nil
	default:
		return DirectiveNone, nil, fmt.Errorf("unknown draft directive %q", resp.Directive)
	}
}

func (g *GeminiInterpreter) InterpretWriteTurn(ctx context.Context, history []types.ConversationTurn, text string, label Label) (WriteIntent, error) {
	raw, err := g.classifier.complete(ctx, writeTurnSystemPrompt, renderPrompt(history, text))
	if err != nil {
		logging.PerceptionWarn("write turn interpretation failed, using heuristics: %v", err)
		return g.fallback.InterpretWriteTurn(ctx, history, text, label)
	}

	var resp struct {
		Op     string            `json:"op"`
		Deltas map[string]string `json:"deltas"`
		Query  string            `json:"query"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		logging.PerceptionWarn("unparseable write intent %q, using heuristics: %v", raw, err)
		return g.fallback.InterpretWriteTurn(ctx, history, text, label)
	}

	intent := WriteIntent{Op: WriteOp(resp.Op), Query: resp.Query}
	switch intent.Op {
	case OpCompose, OpReply:
		intent.Kind = draft.KindEmail
	case OpCreateEvent:
		intent.Kind = draft.KindCalendarEvent
	case OpUpdateEvent:
		intent.Tool = tools.CalendarPatch
		intent.Deltas = make(map[types.FieldName]string, len(resp.Deltas))
		for k, v := range resp.Deltas {
			if field, ok := fieldForWord(k, draft.KindCalendarEvent); ok {
				intent.Deltas[field] = v
			}
		}
	case OpDelete:
		if label == LabelCalendar {
			intent.Tool = tools.CalendarDelete
		} else {
			intent.Tool = tools.EmailDelete
		}
	default:
		return WriteIntent{}, fmt.Errorf("unknown write op %q", resp.Op)
	}

	if intent.Kind != "" {
		intent.Deltas = make(map[types.FieldName]string, len(resp.Deltas))
		for k, v := range resp.Deltas {
			if field, ok := fieldForWord(k, intent.Kind); ok {
				intent.Deltas[field] = v
			}
		}
	}
	return intent, nil
}

func (g *GeminiInterpreter) ExtractReadCall(ctx context.Context, history []types.ConversationTurn, text string, label Label) (string, tools.Params, error) {
	raw, err := g.classifier.complete(ctx, readTurnSystemPrompt, renderPrompt(history, text))
	if err != nil {
		logging.PerceptionWarn("read call extraction failed, using heuristics: %v", err)
		return g.fallback.ExtractReadCall(ctx, history, text, label)
	}

	var resp struct {
		Tool   string            `json:"tool"`
		Params map[string]string `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		logging.PerceptionWarn("unparseable read call %q, using heuristics: %v", raw, err)
		return g.fallback.ExtractReadCall(ctx, history, text, label)
	}
	if resp.Tool == "" {
		return g.fallback.ExtractReadCall(ctx, history, text, label)
	}

	params := make(tools.Params, len(resp.Params))
	for k, v := range resp.Params {
		params[types.FieldName(k)] = v
	}
	return resp.Tool, params, nil
}
