package perception

import (
	"context"
	"regexp"
	"strings"

	"valet/internal/draft"
	"valet/internal/logging"
	"valet/internal/tools"
	"valet/internal/types"
)

// HeuristicInterpreter is the offline interpreter. It covers the common
// phrasings with regexes and keyword cues so the pipeline stays usable
// without an API key. Same degradation path as KeywordClassifier.
type HeuristicInterpreter struct{}

func NewHeuristicInterpreter() *HeuristicInterpreter { return &HeuristicInterpreter{} }

// fieldPattern matches "subject is X", "set the body to X", "to: X" style
// field assignments. Group 1 is the field word, group 2 the value.
var fieldPattern = regexp.MustCompile(`(?i)\b(subject|body|to|cc|summary|title|start|end|location|attendees|description)\b\s*(?:is|to say|to|[:=])\s*(.+)`)

var (
	sendCues    = []string{"send it", "send the email", "send this", "go ahead and send", "ship it", "looks good, send", "create the event", "add it to my calendar", "book it", "schedule it"}
	composeCues = []string{"compose", "write an email", "write another", "draft an email", "draft another", "new email", "another email", "start a new"}
	discardCues = []string{"discard", "never mind", "nevermind", "forget it", "cancel the draft", "scrap it", "throw it away", "don't send"}
	deleteCues  = []string{"delete", "remove", "cancel the meeting", "cancel the event", "cancel my"}
	updateCues  = []string{"reschedule", "move my", "move the", "push back", "change my", "change the", "update my", "update the"}
	replyCues   = []string{"reply", "respond to", "write back", "answer"}
	nextCues    = []string{"next", "more", "show more", "next page", "keep going", "continue"}
)

func containsAny(text string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// fieldForWord maps the surface word to the canonical field name.
func fieldForWord(word string, kind draft.Kind) (types.FieldName, bool) {
	switch strings.ToLower(word) {
	case "subject", "title":
		if kind == draft.KindCalendarEvent {
			return types.FieldSummary, true
		}
		return types.FieldSubject, true
	case "summary":
		return types.FieldSummary, true
	case "body":
		return types.FieldBody, true
	case "to":
		if kind == draft.KindCalendarEvent {
			return types.FieldAttendees, true
		}
		return types.FieldTo, true
	case "cc":
		return types.FieldCc, true
	case "start":
		return types.FieldStart, true
	case "end":
		return types.FieldEnd, true
	case "location":
		return types.FieldLocation, true
	case "attendees":
		return types.FieldAttendees, true
	case "description":
		return types.FieldDescription, true
	}
	return "", false
}

// clausePattern splits a turn into clauses on commas, semicolons and " and ".
var clausePattern = regexp.MustCompile(`(?i)\s*(?:,|;|\band\b)\s*`)

// extractDeltas pulls field assignments out of a turn. Clauses are split on
// commas and " and " so "subject is Lunch and body is See you at noon" yields
// two deltas.
func extractDeltas(text string, kind draft.Kind) map[types.FieldName]string {
	deltas := make(map[types.FieldName]string)
	clauses := clausePattern.Split(text, -1)
	for _, clause := range clauses {
		m := fieldPattern.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		field, ok := fieldForWord(m[1], kind)
		if !ok {
			continue
		}
		deltas[field] = strings.TrimSpace(m[2])
	}
	return deltas
}

func (h *HeuristicInterpreter) InterpretDraftTurn(_ context.Context, _ []types.ConversationTurn, text string, kind draft.Kind) (DraftDirective, map[types.FieldName]string, error) {
	lower := strings.ToLower(text)
	if containsAny(lower, discardCues) {
		return DirectiveDiscard, nil, nil
	}
	if containsAny(lower, sendCues) {
		return DirectiveSend, nil, nil
	}
	// Starting a fresh draft is not an edit of this one.
	if containsAny(lower, composeCues) {
		return DirectiveNone, nil, nil
	}
	if deltas := extractDeltas(text, kind); len(deltas) > 0 {
		return DirectiveUpdate, deltas, nil
	}
	logging.Perception("draft turn fell through to router: %q", text)
	return DirectiveNone, nil, nil
}

func (h *HeuristicInterpreter) InterpretWriteTurn(_ context.Context, _ []types.ConversationTurn, text string, label Label) (WriteIntent, error) {
	lower := strings.ToLower(text)

	if containsAny(lower, deleteCues) {
		intent := WriteIntent{Op: OpDelete, Query: stripCueWords(lower)}
		switch label {
		case LabelCalendar:
			intent.Tool = tools.CalendarDelete
		default:
			intent.Tool = tools.EmailDelete
		}
		return intent, nil
	}

	if label == LabelCalendar {
		if containsAny(lower, updateCues) {
			return WriteIntent{
				Op:     OpUpdateEvent,
				Tool:   tools.CalendarPatch,
				Deltas: extractDeltas(text, draft.KindCalendarEvent),
				Query:  targetQuery(lower),
			}, nil
		}
		return WriteIntent{
			Op:     OpCreateEvent,
			Kind:   draft.KindCalendarEvent,
			Deltas: extractDeltas(text, draft.KindCalendarEvent),
		}, nil
	}

	op := OpCompose
	if containsAny(lower, replyCues) {
		op = OpReply
	}
	return WriteIntent{
		Op:     op,
		Kind:   draft.KindEmail,
		Deltas: extractDeltas(text, draft.KindEmail),
	}, nil
}

func (h *HeuristicInterpreter) ExtractReadCall(_ context.Context, _ []types.ConversationTurn, text string, label Label) (string, tools.Params, error) {
	query := stripCueWords(strings.ToLower(text))
	if query == "" {
		// Match-all: the backend treats it as an unfiltered listing.
		query = "*"
	}
	params := tools.Params{tools.ParamQuery: query}

	switch label {
	case LabelCalendar:
		return tools.CalendarSearch, params, nil
	case LabelContact:
		return tools.ContactsSearch, params, nil
	default:
		return tools.EmailSearch, params, nil
	}
}

// stripCueWords removes the imperative scaffolding so "search my email for
// invoices from acme" leaves "invoices from acme" as the query.
var cuePrefix = regexp.MustCompile(`(?i)^(?:please\s+)?(?:can you\s+)?(?:search|find|look up|look for|show me|show|list|get|delete|remove|cancel|reschedule|move|push back|change|update)\s*(?:my\s+|the\s+)?(?:emails?|messages?|inbox|calendar|events?|meetings?|appointments?|contacts?)?\s*(?:for|about|from|with|named|called)?\s*`)

func stripCueWords(text string) string {
	out := cuePrefix.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.Trim(out, `"?.!`))
}

// targetQuery pulls the mutation target out of a turn, skipping the clauses
// that carry field assignments. "reschedule my dentist visit, start is 11am"
// leaves "dentist visit".
func targetQuery(text string) string {
	for _, clause := range clausePattern.Split(text, -1) {
		if fieldPattern.MatchString(clause) {
			continue
		}
		if q := stripCueWords(clause); q != "" {
			return q
		}
	}
	return ""
}

// IsNextPage reports whether a turn is a pagination continuation request.
// Short turns only: "show me more detail about X" should not match.
func IsNextPage(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	if len(lower) > 24 {
		return false
	}
	for _, c := range nextCues {
		if lower == c || strings.TrimSuffix(lower, ".") == c {
			return true
		}
	}
	return false
}
