package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"valet/internal/logging"
	"valet/internal/types"
)

// GeminiClassifier classifies turns with the Gemini API. The primary label
// and the read/write sub-intent are separate prompts issued in parallel.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

const labelSystemPrompt = `You classify a user's message to a personal assistant.
Answer with JSON only: {"label": "...", "confidence": 0.0}
label must be one of: email, calendar, contact, general.
Use the conversation context to resolve pronouns and follow-ups.
general means smalltalk or anything not about the user's email, calendar, or contacts.`

const subIntentSystemPrompt = `You classify a user's message to a personal assistant.
Answer with JSON only: {"sub": "..."}
sub must be "read" if the user wants to find, list, or look at existing items,
or "write" if the user wants to create, send, change, or delete something.`

// NewGeminiClassifier creates a Gemini-backed classifier.
func NewGeminiClassifier(apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logging.Perception("Gemini classifier ready (model=%s)", model)
	return &GeminiClassifier{client: client, model: model}, nil
}

// Classify runs the label and sub-intent prompts concurrently and merges the
// verdicts. Either call failing fails the classification; the router then
// degrades to General.
func (g *GeminiClassifier) Classify(ctx context.Context, history []types.ConversationTurn, text string) (Classification, error) {
	prompt := renderPrompt(history, text)

	var labelRaw, subRaw string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		out, err := g.complete(egCtx, labelSystemPrompt, prompt)
		labelRaw = out
		return err
	})
	eg.Go(func() error {
		out, err := g.complete(egCtx, subIntentSystemPrompt, prompt)
		subRaw = out
		return err
	})
	if err := eg.Wait(); err != nil {
		return Classification{}, fmt.Errorf("classification failed: %w", err)
	}

	var labelResp struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(labelRaw), &labelResp); err != nil {
		return Classification{}, fmt.Errorf("failed to parse label response %q: %w", labelRaw, err)
	}

	var subResp struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal([]byte(subRaw), &subResp); err != nil {
		return Classification{}, fmt.Errorf("failed to parse sub-intent response %q: %w", subRaw, err)
	}

	c := Classification{
		Label:      ParseLabel(labelResp.Label),
		Sub:        SubIntentNone,
		Confidence: labelResp.Confidence,
	}
	if c.Label == LabelEmail || c.Label == LabelCalendar {
		c.Sub = ParseSubIntent(subResp.Sub)
	}

	logging.Perception("Gemini classification: label=%s sub=%s confidence=%.2f", c.Label, c.Sub, c.Confidence)
	return c, nil
}

func (g *GeminiClassifier) complete(ctx context.Context, system, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}

// renderPrompt folds the recent conversation into the classification input.
func renderPrompt(history []types.ConversationTurn, text string) string {
	if len(history) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
	}
	b.WriteString("\nCurrent message:\n")
	b.WriteString(text)
	return b.String()
}
