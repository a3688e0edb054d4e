package perception

import (
	"context"
	"strings"

	"valet/internal/logging"
	"valet/internal/types"
)

// KeywordClassifier is a deterministic classifier driven by verb and noun
// cues in the turn text. It backs tests and offline operation; its verdicts
// carry lower confidence than the LLM path.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var (
	emailCues    = []string{"email", "e-mail", "mail", "inbox", "message from"}
	calendarCues = []string{"calendar", "event", "meeting", "appointment", "schedule", "invite"}
	contactCues  = []string{"contact", "phone number", "address book", "address for"}

	writeCues = []string{
		"send", "write", "compose", "draft", "reply", "respond",
		"create", "set up", "book", "add", "move", "reschedule",
		"cancel", "delete", "remove", "update", "change",
	}
	readCues = []string{
		"find", "search", "show", "list", "look", "check",
		"read", "what", "when", "who", "any", "do i have",
	}
)

// Classify picks the label by cue matching; recent history breaks ties when
// the turn itself is ambiguous (e.g. a bare "delete the second one").
func (k *KeywordClassifier) Classify(ctx context.Context, history []types.ConversationTurn, text string) (Classification, error) {
	lowered := strings.ToLower(text)

	label := matchLabel(lowered)
	if label == LabelGeneral {
		// Walk history newest-first for the last domain mentioned.
		for i := len(history) - 1; i >= 0 && label == LabelGeneral; i-- {
			label = matchLabel(strings.ToLower(history[i].Text))
		}
	}

	sub := SubIntentNone
	if label == LabelEmail || label == LabelCalendar {
		sub = matchSubIntent(lowered)
	}

	c := Classification{Label: label, Sub: sub, Confidence: 0.6}
	if label == LabelGeneral {
		c.Confidence = 0.3
	}

	logging.PerceptionDebug("Keyword classification: label=%s sub=%s", c.Label, c.Sub)
	return c, nil
}

func matchLabel(lowered string) Label {
	for _, cue := range emailCues {
		if strings.Contains(lowered, cue) {
			return LabelEmail
		}
	}
	for _, cue := range calendarCues {
		if strings.Contains(lowered, cue) {
			return LabelCalendar
		}
	}
	for _, cue := range contactCues {
		if strings.Contains(lowered, cue) {
			return LabelContact
		}
	}
	return LabelGeneral
}

func matchSubIntent(lowered string) SubIntent {
	for _, cue := range writeCues {
		if strings.Contains(lowered, cue) {
			return SubIntentWrite
		}
	}
	for _, cue := range readCues {
		if strings.Contains(lowered, cue) {
			return SubIntentRead
		}
	}
	return SubIntentRead
}
