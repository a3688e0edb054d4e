package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"valet/internal/anchor"
	"valet/internal/config"
	"valet/internal/confirm"
	"valet/internal/draft"
	"valet/internal/orchestrator"
	"valet/internal/perception"
	"valet/internal/store"
	"valet/internal/tools"
	"valet/internal/types"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	confirmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// session holds the wired pipeline for one interactive run.
type session struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	st       *store.Store
	renderer *glamour.TermRenderer

	threadID string
	turn     int

	// awaitingConfirm is set while the last outcome staged a confirmation,
	// so the next input is parsed as the answer.
	awaitingConfirm *confirm.Request
}

func runChat() error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Println(promptStyle.Render("valet") + dimStyle.Render("  /help for commands, /quit to exit"))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.handleCommand(line); quit {
				break
			}
			continue
		}
		s.handleInput(line)
	}
	return scanner.Err()
}

func newSession() (*session, error) {
	cfg, err := config.LoadFromWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	if provider != "" {
		cfg.LLM.Provider = provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	classifier, interp, err := perception.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	st, err := store.New(dbPath)
	if err != nil {
		logger.Warn("store unavailable, drafts will not survive restart", zap.Error(err))
		st = nil
	}

	gate := confirm.NewGate()
	var engine *draft.Engine
	if st != nil {
		engine = draft.NewEngine(gate, st)
	} else {
		engine = draft.NewEngine(gate, nil)
	}

	deps := orchestrator.Deps{
		Classifier:  classifier,
		Interpreter: interp,
		Registry:    tools.NewCatalogRegistry(),
		Executor:    tools.NewSeededExecutor(),
		Gate:        gate,
		Engine:      engine,
	}
	if st != nil {
		deps.Events = st
	}
	orch := orchestrator.New(cfg, deps)

	s := &session{
		cfg:      cfg,
		orch:     orch,
		st:       st,
		threadID: "local",
	}
	s.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	s.rehydrate()
	return s, nil
}

// rehydrate reloads live drafts from the store and re-anchors the most
// recently touched one for this thread.
func (s *session) rehydrate() {
	if s.st == nil {
		return
	}
	drafts, err := s.st.LiveDrafts()
	if err != nil {
		logger.Warn("could not reload drafts", zap.Error(err))
		return
	}
	var latest *draft.Draft
	for _, d := range drafts {
		s.orch.Engine().Restore(d)
		if d.ThreadID == s.threadID && (latest == nil || d.UpdatedAt.After(latest.UpdatedAt)) {
			latest = d
		}
	}
	if latest != nil {
		s.orch.RestoreAnchor(s.threadID, anchor.ItemDraft, latest.ID)
		fmt.Println(dimStyle.Render(fmt.Sprintf("Resumed %s draft from last session. /drafts to inspect.", latest.Kind)))
	}
}

func (s *session) close() {
	if s.st != nil {
		_ = s.st.Close()
	}
}

func (s *session) handleInput(line string) {
	s.turn++
	turn := types.Turn{
		ThreadID:  s.threadID,
		MessageID: fmt.Sprintf("msg-%04d", s.turn),
		Text:      line,
	}
	if s.awaitingConfirm != nil {
		turn.Confirmation = parseConfirmation(line, s.awaitingConfirm)
		s.awaitingConfirm = nil
	}

	out, err := s.orch.HandleTurn(context.Background(), turn)
	if err != nil {
		fmt.Println(errStyle.Render("error: " + err.Error()))
		return
	}

	if cn, ok := out.(orchestrator.ConfirmationNeeded); ok {
		s.awaitingConfirm = cn.Request
		fmt.Println(confirmStyle.Render(out.Text()))
		return
	}
	s.render(out.Text())
}

// parseConfirmation turns a raw line into the confirmation answer. A line
// that is neither an accept, a decline, nor a selection is treated as new
// intent, which abandons the pending request.
func parseConfirmation(line string, req *confirm.Request) *types.ConfirmationResponse {
	lower := strings.ToLower(strings.TrimSpace(line))

	if req.RequiresFreeform {
		if _, err := strconv.Atoi(lower); err == nil {
			return &types.ConfirmationResponse{Accept: true, Selection: lower}
		}
		switch lower {
		case "n", "no", "nope", "cancel", "none", "neither":
			// Moving on abandons the pending selection.
			return nil
		}
		// A short garbled reply is a mistyped choice; the gate answers with
		// the valid range. Anything longer reads as new intent.
		if len(strings.Fields(lower)) <= 2 {
			return &types.ConfirmationResponse{Accept: true, Selection: lower}
		}
		return nil
	}

	switch lower {
	case "y", "yes", "yep", "ok", "sure", "confirm", "do it", "go ahead":
		return &types.ConfirmationResponse{Accept: true}
	case "n", "no", "nope", "don't", "stop":
		return &types.ConfirmationResponse{Accept: false}
	}
	return nil
}

func (s *session) render(text string) {
	if s.renderer != nil {
		if out, err := s.renderer.Render(text); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(text)
}

// handleCommand runs a slash command; returns true to exit the loop.
func (s *session) handleCommand(line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		s.render(helpText)
	case "/drafts":
		s.showDrafts()
	case "/anchor":
		s.showAnchor()
	case "/tools":
		printCatalog()
	default:
		fmt.Println(dimStyle.Render("Unknown command. /help lists what's available."))
	}
	return false
}

const helpText = `## Commands

| Command | Effect |
|---|---|
| /drafts | List live drafts |
| /anchor | Show what the conversation is focused on |
| /tools | List the capability catalog |
| /quit | Exit |

Anything else is a request: search mail, draft and send email,
manage calendar events, look up contacts. Say ` + "`more`" + ` to page
through long result lists.`

func (s *session) showDrafts() {
	if s.st == nil {
		fmt.Println(dimStyle.Render("No store configured."))
		return
	}
	drafts, err := s.st.LiveDrafts()
	if err != nil {
		fmt.Println(errStyle.Render("error: " + err.Error()))
		return
	}
	if len(drafts) == 0 {
		fmt.Println(dimStyle.Render("No live drafts."))
		return
	}
	for _, d := range drafts {
		fmt.Printf("%s  %s (%s)\n", d.ID, d.Kind, d.Status)
		for field, value := range d.Fields {
			fmt.Printf("    %s: %s\n", field, value)
		}
	}
}

func (s *session) showAnchor() {
	// The anchor is internal state; surface it through a draft listing
	// rather than poking at the manager: the active draft is the anchor
	// when one exists.
	if d := s.orch.Engine().Active(s.threadID); d != nil {
		fmt.Printf("Focused on the %s draft %s (%s).\n", d.Kind, d.ID, d.Status)
		return
	}
	fmt.Println(dimStyle.Render("Nothing anchored right now."))
}
