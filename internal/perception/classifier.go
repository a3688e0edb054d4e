// Package perception classifies user turns into routable intents.
//
// The classifier is a black box to the router: it returns one label plus a
// confidence, and the router imposes no confidence threshold. An error or
// unknown label simply degrades to General.
//
// Two implementations exist: a Gemini-backed classifier for production and a
// deterministic keyword classifier used as fallback and in tests.
package perception

import (
	"context"
	"fmt"
	"strings"

	"valet/internal/config"
	"valet/internal/logging"
	"valet/internal/types"
)

// Label is the primary intent category of a turn.
type Label string

const (
	LabelEmail    Label = "email"
	LabelCalendar Label = "calendar"
	LabelContact  Label = "contact"
	LabelGeneral  Label = "general"
)

// SubIntent distinguishes search/read from create/send within the email and
// calendar labels.
type SubIntent string

const (
	SubIntentRead  SubIntent = "read"
	SubIntentWrite SubIntent = "write"
	SubIntentNone  SubIntent = "none"
)

// Classification is one classifier verdict.
type Classification struct {
	Label      Label
	Sub        SubIntent
	Confidence float64
}

// Classifier is the boundary to the intent classification service.
type Classifier interface {
	Classify(ctx context.Context, history []types.ConversationTurn, text string) (Classification, error)
}

// NewFromConfig builds the configured classifier and interpreter pair. A
// Gemini provider without an API key degrades to the offline implementations
// rather than failing boot.
func NewFromConfig(cfg *config.Config) (Classifier, Interpreter, error) {
	switch cfg.LLM.Provider {
	case "keyword":
		return NewKeywordClassifier(), NewHeuristicInterpreter(), nil
	case "gemini", "":
		if cfg.LLM.APIKey == "" {
			logging.PerceptionWarn("No API key configured, falling back to keyword classifier")
			return NewKeywordClassifier(), NewHeuristicInterpreter(), nil
		}
		classifier, err := NewGeminiClassifier(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, nil, err
		}
		return classifier, NewGeminiInterpreter(classifier), nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier provider %q", cfg.LLM.Provider)
	}
}

// ParseLabel maps a raw label string onto a known Label. Unknown strings map
// to General.
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelEmail:
		return LabelEmail
	case LabelCalendar:
		return LabelCalendar
	case LabelContact:
		return LabelContact
	default:
		return LabelGeneral
	}
}

// ParseSubIntent maps a raw sub-intent string onto a known SubIntent.
func ParseSubIntent(s string) SubIntent {
	switch SubIntent(strings.ToLower(strings.TrimSpace(s))) {
	case SubIntentRead:
		return SubIntentRead
	case SubIntentWrite:
		return SubIntentWrite
	default:
		return SubIntentNone
	}
}
