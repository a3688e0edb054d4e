// Package orchestrator is the routing core: it takes one user turn at a
// time and drives it through confirmation resolution, pagination
// continuation, draft editing, intent classification, and tool dispatch.
//
// Architecture:
//
//	Turn ──► confirmation response?  ──► Gate.Resolve ──► execute / reply
//	     ──► pending unanswered?     ──► Gate.Abandon, keep routing
//	     ──► "more"?                 ──► Cursor.NextPage ──► re-execute
//	     ──► draft anchored?         ──► Interpreter ──► Engine update/send
//	     ──► Classifier              ──► read dispatch / draft creation
//
// Turns for the same thread are serialized; distinct threads proceed in
// parallel. Every routing decision is appended to the thread transcript.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"valet/internal/anchor"
	"valet/internal/config"
	"valet/internal/confirm"
	"valet/internal/draft"
	"valet/internal/logging"
	"valet/internal/pagination"
	"valet/internal/perception"
	"valet/internal/tools"
	"valet/internal/types"
)

// EventSink receives transcript events. The store implements it; a nil sink
// disables the transcript.
type EventSink interface {
	AppendEvent(ev types.ThreadEvent) error
}

// Orchestrator wires the turn pipeline together. Construct with New; the
// zero value is not usable.
type Orchestrator struct {
	cfg        *config.Config
	classifier perception.Classifier
	interp     perception.Interpreter
	registry   *tools.Registry
	executor   tools.Executor
	gate       *confirm.Gate
	engine     *draft.Engine
	anchors    *anchor.Manager
	cursors    *pagination.Manager
	seq        *Sequencer
	events     EventSink

	mu      sync.Mutex
	threads map[string]*threadState
}

// threadState serializes turns and holds the conversation window for one
// thread.
type threadState struct {
	mu      sync.Mutex
	history []types.ConversationTurn
}

// Deps carries the orchestrator's collaborators. Gate, Engine, Anchors and
// Cursors default to fresh instances when nil; Events may stay nil.
type Deps struct {
	Classifier  perception.Classifier
	Interpreter perception.Interpreter
	Registry    *tools.Registry
	Executor    tools.Executor
	Gate        *confirm.Gate
	Engine      *draft.Engine
	Anchors     *anchor.Manager
	Cursors     *pagination.Manager
	Events      EventSink
}

// New creates an orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	gate := deps.Gate
	if gate == nil {
		gate = confirm.NewGate()
	}
	engine := deps.Engine
	if engine == nil {
		engine = draft.NewEngine(gate, nil)
	}
	anchors := deps.Anchors
	if anchors == nil {
		anchors = anchor.NewManager()
	}
	cursors := deps.Cursors
	if cursors == nil {
		cursors = pagination.NewManager()
	}

	return &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		interp:     deps.Interpreter,
		registry:   deps.Registry,
		executor:   deps.Executor,
		gate:       gate,
		engine:     engine,
		anchors:    anchors,
		cursors:    cursors,
		seq:        NewSequencer(),
		events:     deps.Events,
		threads:    make(map[string]*threadState),
	}
}

// Engine exposes the draft engine for session restoration.
func (o *Orchestrator) Engine() *draft.Engine { return o.engine }

func (o *Orchestrator) thread(threadID string) *threadState {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts, ok := o.threads[threadID]
	if !ok {
		ts = &threadState{}
		o.threads[threadID] = ts
	}
	return ts
}

// HandleTurn routes one user turn to completion. Turns for the same thread
// block each other; the caller may invoke this from any goroutine.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn types.Turn) (Outcome, error) {
	ts := o.thread(turn.ThreadID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	logging.Routing("Turn %s on thread %s: %q (confirmation=%v)",
		turn.MessageID, turn.ThreadID, turn.Text, turn.Confirmation != nil)
	o.emit(turn.ThreadID, types.EventTurnReceived, turn.Text)

	history := ts.history
	outcome, err := o.route(ctx, turn, history)
	if err != nil {
		return nil, err
	}

	ts.history = appendHistory(ts.history, turn.Text, outcome.Text(), o.cfg.Assistant.HistoryWindow)
	o.emit(turn.ThreadID, types.EventOutcome, outcome.Text())
	return outcome, nil
}

func (o *Orchestrator) route(ctx context.Context, turn types.Turn, history []types.ConversationTurn) (Outcome, error) {
	// 1. An explicit answer to a pending confirmation wins over everything.
	if turn.Confirmation != nil {
		return o.handleConfirmation(ctx, turn)
	}

	// 2. A pending confirmation answered with unrelated input is abandoned;
	// the new input routes normally. Whatever the turn becomes, the outcome
	// tells the user the staged action was set aside.
	abandonNote := ""
	if req := o.gate.Pending(turn.ThreadID); req != nil {
		o.gate.Abandon(turn.ThreadID)
		o.emit(turn.ThreadID, types.EventConfirmClosed, "abandoned "+req.ID)
		abandonNote = "I've set the pending action aside."
	}

	// 3. Pagination continuation.
	if perception.IsNextPage(turn.Text) {
		if c := o.cursors.Get(turn.ThreadID); c != nil {
			out, err := o.handleNextPage(ctx, turn.ThreadID, c)
			if err != nil {
				return nil, err
			}
			return withNote(out, abandonNote), nil
		}
		return withNote(Reply{Message: "There's no result list to page through right now."}, abandonNote), nil
	}

	// 4. A turn under a draft anchor is first offered to the draft flow.
	if a := o.anchors.Get(turn.ThreadID); a != nil && a.ItemType == anchor.ItemDraft {
		outcome, routed, err := o.handleDraftTurn(ctx, turn, history, a)
		if err != nil {
			return nil, err
		}
		if routed {
			return withNote(outcome, abandonNote), nil
		}
	}

	// 5. Fresh intent.
	c, err := o.classifier.Classify(ctx, history, turn.Text)
	if err != nil {
		logging.RoutingWarn("Classification failed, degrading to general: %v", err)
		c = perception.Classification{Label: perception.LabelGeneral}
	}
	logging.Routing("Thread %s classified label=%s sub=%s confidence=%.2f",
		turn.ThreadID, c.Label, c.Sub, c.Confidence)

	var out Outcome
	switch {
	case c.Label == perception.LabelGeneral:
		out = Reply{Message: "I can search your email, manage your calendar, look up contacts, and draft messages. What do you need?"}
	case c.Sub == perception.SubIntentWrite:
		out, err = o.handleWrite(ctx, turn, history, c.Label)
	default:
		out, err = o.handleRead(ctx, turn, history, c.Label)
	}
	if err != nil {
		return nil, err
	}
	return withNote(out, abandonNote), nil
}

// =============================================================================
// CONFIRMATION RESOLUTION
// =============================================================================

func (o *Orchestrator) handleConfirmation(ctx context.Context, turn types.Turn) (Outcome, error) {
	res, err := o.gate.Resolve(turn.ThreadID, *turn.Confirmation)
	if err != nil {
		if errors.Is(err, confirm.ErrNoPendingRequest) {
			return Reply{Message: "There's nothing waiting on your confirmation."}, nil
		}
		return nil, err
	}
	o.emit(turn.ThreadID, types.EventConfirmClosed, string(res.Decision))

	switch res.Decision {
	case confirm.Declined:
		return Reply{Message: o.declineMessage(res.Context)}, nil
	case confirm.Invalid:
		return Reply{Message: res.Reason}, nil
	}

	return o.executeConfirmed(ctx, turn.ThreadID, res)
}

// executeConfirmed dispatches the accepted action. The params come from the
// staged context verbatim; only an accepted selection adds the chosen id.
func (o *Orchestrator) executeConfirmed(ctx context.Context, threadID string, res *confirm.Resolution) (Outcome, error) {
	var params tools.Params
	var draftID string

	switch c := res.Context.(type) {
	case confirm.EmailSendContext:
		params = c.Params.Clone()
		draftID = c.DraftID
	case confirm.CalendarMutationContext:
		params = c.Params.Clone()
		draftID = c.DraftID
	case confirm.SelectionContext:
		params = c.Params.Clone()
		params[tools.ParamID] = res.SelectedID
	default:
		return nil, fmt.Errorf("unknown action context %T", res.Context)
	}

	result, err := o.dispatch(ctx, res.Context.Tool(), params)
	if err != nil {
		// The confirmation is already consumed; the user must restage.
		return toolFailure(res.Context.Tool(), err), nil
	}

	if draftID != "" {
		if err := o.engine.MarkSent(draftID); err != nil {
			logging.RoutingWarn("Could not mark draft %s sent: %v", draftID, err)
		}
		if a := o.anchors.Get(threadID); a != nil && a.ItemType == anchor.ItemDraft && a.ItemID == draftID {
			o.anchors.Clear(threadID)
			o.emit(threadID, types.EventAnchorChanged, "cleared")
		}
		o.emit(threadID, types.EventDraftChanged, draftID+" sent")
	}

	if result.Payload != "" {
		return Reply{Message: result.Payload}, nil
	}
	return Reply{Message: "Done."}, nil
}

func (o *Orchestrator) declineMessage(c confirm.ActionContext) string {
	switch c.(type) {
	case confirm.EmailSendContext:
		return "Okay, I won't send it. The draft is still here if you change your mind."
	case confirm.CalendarMutationContext:
		return "Okay, I've left your calendar alone."
	default:
		return "Okay, cancelled."
	}
}

// =============================================================================
// PAGINATION
// =============================================================================

func (o *Orchestrator) handleNextPage(ctx context.Context, threadID string, c *pagination.Cursor) (Outcome, error) {
	params, offset, err := c.NextPage()
	if err != nil {
		if errors.Is(err, pagination.ErrCursorExhausted) {
			o.cursors.Clear(threadID)
			return Reply{Message: "That's everything."}, nil
		}
		return nil, err
	}

	params[tools.ParamOffset] = strconv.Itoa(offset)
	params[tools.ParamLimit] = strconv.Itoa(c.Limit)
	result, err := o.dispatch(ctx, c.ToolName, params)
	if err != nil {
		// Failed fetch; the next continuation retries this page.
		c.Rewind()
		return toolFailure(c.ToolName, err), nil
	}
	c.Observe(result)

	return ToolResult{Result: result, HasMore: c.HasMore()}, nil
}

// =============================================================================
// DRAFT FLOW
// =============================================================================

// handleDraftTurn interprets a turn against the anchored draft. routed is
// false when the turn is about something else and must continue through
// classification.
func (o *Orchestrator) handleDraftTurn(ctx context.Context, turn types.Turn, history []types.ConversationTurn, a *anchor.Context) (Outcome, bool, error) {
	d, err := o.engine.Get(a.ItemID)
	if err != nil || d.Terminal() {
		// Stale anchor: the draft went away underneath it.
		logging.RoutingWarn("Clearing stale draft anchor %s on thread %s", a.ItemID, turn.ThreadID)
		o.anchors.Clear(turn.ThreadID)
		o.emit(turn.ThreadID, types.EventAnchorChanged, "cleared stale")
		return nil, false, nil
	}

	directive, deltas, err := o.interp.InterpretDraftTurn(ctx, history, turn.Text, d.Kind)
	if err != nil {
		return nil, false, err
	}

	switch directive {
	case perception.DirectiveUpdate:
		updated, validation, err := o.engine.Update(d.ID, deltas)
		if err != nil {
			return nil, false, err
		}
		o.anchors.RefreshSnapshot(turn.ThreadID, updated.Snapshot())
		o.emit(turn.ThreadID, types.EventDraftChanged, d.ID+" updated")
		return DraftUpdated{Draft: updated, Validation: validation}, true, nil

	case perception.DirectiveSend:
		req, err := o.engine.RequestSend(d.ID)
		if err != nil {
			if errors.Is(err, draft.ErrDraftIncomplete) {
				validation, verr := o.engine.Validate(d.ID)
				if verr != nil {
					return nil, false, verr
				}
				return DraftUpdated{Draft: d, Validation: validation}, true, nil
			}
			return nil, false, err
		}
		o.emit(turn.ThreadID, types.EventConfirmOpened, req.ID)
		return ConfirmationNeeded{Request: req}, true, nil

	case perception.DirectiveDiscard:
		if err := o.engine.Discard(d.ID); err != nil {
			return nil, false, err
		}
		o.anchors.Clear(turn.ThreadID)
		o.emit(turn.ThreadID, types.EventDraftChanged, d.ID+" discarded")
		o.emit(turn.ThreadID, types.EventAnchorChanged, "cleared")
		return Reply{Message: "Draft discarded."}, true, nil
	}

	return nil, false, nil
}

// =============================================================================
// READ DISPATCH
// =============================================================================

func (o *Orchestrator) handleRead(ctx context.Context, turn types.Turn, history []types.ConversationTurn, label perception.Label) (Outcome, error) {
	toolName, params, err := o.interp.ExtractReadCall(ctx, history, turn.Text, label)
	if err != nil {
		return nil, err
	}
	cap := o.registry.Get(toolName)
	if cap == nil {
		return nil, fmt.Errorf("%w: %s", tools.ErrCapabilityNotFound, toolName)
	}
	if err := o.registry.ValidateParams(toolName, params); err != nil {
		return Reply{Message: "I need a bit more to go on. " + err.Error()}, nil
	}

	execParams := params.Clone()
	if cap.Paged {
		execParams[tools.ParamOffset] = "0"
		execParams[tools.ParamLimit] = strconv.Itoa(o.cfg.Assistant.PageSize)
	}

	result, err := o.dispatch(ctx, toolName, execParams)
	if err != nil {
		return toolFailure(toolName, err), nil
	}

	hasMore := false
	if cap.Paged {
		c := pagination.Open(toolName, params, o.cfg.Assistant.PageSize, result)
		hasMore = c.HasMore()
		if hasMore {
			o.cursors.Put(turn.ThreadID, c)
		} else {
			o.cursors.Clear(turn.ThreadID)
		}
	}

	// Fetching one concrete item makes it the thread's working context.
	if itemType, ok := anchorTypeForTool(toolName); ok && len(result.Items) == 1 {
		o.anchorItem(turn.ThreadID, itemType, result.Items[0], result.Meta)
	}

	return ToolResult{Result: result, HasMore: hasMore}, nil
}

// anchorTypeForTool maps single-item read capabilities to the anchor type
// they establish.
func anchorTypeForTool(toolName string) (anchor.ItemType, bool) {
	switch toolName {
	case tools.EmailGet:
		return anchor.ItemEmail, true
	default:
		return "", false
	}
}

func (o *Orchestrator) anchorItem(threadID string, itemType anchor.ItemType, item tools.Item, meta map[string]string) {
	snapshot := map[string]string{"label": item.Label}
	for k, v := range meta {
		snapshot[k] = v
	}
	o.anchors.Set(threadID, itemType, item.ID, snapshot)
	o.emit(threadID, types.EventAnchorChanged, string(itemType)+" "+item.ID)
}

// =============================================================================
// WRITE DISPATCH
// =============================================================================

func (o *Orchestrator) handleWrite(ctx context.Context, turn types.Turn, history []types.ConversationTurn, label perception.Label) (Outcome, error) {
	intent, err := o.interp.InterpretWriteTurn(ctx, history, turn.Text, label)
	if err != nil {
		return nil, err
	}

	switch intent.Op {
	case perception.OpDelete:
		return o.handleDelete(ctx, turn, intent)
	case perception.OpUpdateEvent:
		return o.handleEventUpdate(ctx, turn, intent)
	}
	return o.createDraft(ctx, turn, intent)
}

// createDraft opens a new draft and anchors it. An already-active draft is
// detached, not discarded; the user can come back to it by reference.
func (o *Orchestrator) createDraft(_ context.Context, turn types.Turn, intent perception.WriteIntent) (Outcome, error) {
	var reply *draft.ReplyContext
	if intent.Op == perception.OpReply {
		reply = o.replyContext(turn.ThreadID)
		if reply == nil {
			return Reply{Message: "Which email should I reply to? Open it first and I'll draft the reply."}, nil
		}
	}

	if active := o.engine.Active(turn.ThreadID); active != nil {
		logging.Routing("Detaching draft %s to start a new one on thread %s", active.ID, turn.ThreadID)
		o.engine.Detach(turn.ThreadID)
	}

	d, err := o.engine.Create(intent.Kind, turn.ThreadID, turn.MessageID, reply)
	if err != nil {
		return nil, err
	}
	o.emit(turn.ThreadID, types.EventDraftChanged, d.ID+" created")

	validation, err := o.engine.Validate(d.ID)
	if err != nil {
		return nil, err
	}
	if len(intent.Deltas) > 0 {
		d, validation, err = o.engine.Update(d.ID, intent.Deltas)
		if err != nil {
			return nil, err
		}
	}

	o.anchors.Set(turn.ThreadID, anchor.ItemDraft, d.ID, d.Snapshot())
	o.emit(turn.ThreadID, types.EventAnchorChanged, "draft "+d.ID)
	return DraftUpdated{Draft: d, Validation: validation}, nil
}

// replyContext derives the reply envelope from the anchored email, if any.
func (o *Orchestrator) replyContext(threadID string) *draft.ReplyContext {
	a := o.anchors.Get(threadID)
	if a == nil || a.ItemType != anchor.ItemEmail {
		return nil
	}
	return &draft.ReplyContext{
		SourceThreadRef: threadID,
		SourceItemRef:   a.ItemID,
		To:              a.Snapshot["from"],
		Cc:              a.Snapshot["cc"],
	}
}

// handleEventUpdate stages a change to an existing calendar event behind the
// gate. Like deletes, an event mutation never executes directly.
func (o *Orchestrator) handleEventUpdate(ctx context.Context, turn types.Turn, intent perception.WriteIntent) (Outcome, error) {
	if len(intent.Deltas) == 0 {
		return Reply{Message: "What should change? Tell me the new start, end, location, or title."}, nil
	}

	// An anchored event is the target.
	if a := o.anchors.Get(turn.ThreadID); a != nil && a.ItemType == anchor.ItemCalendarEvent {
		return o.stageEventUpdate(turn.ThreadID, intent, a.ItemID)
	}

	if intent.Query == "" {
		return Reply{Message: "Which event do you mean? Give me something to search for."}, nil
	}

	params := tools.Params{
		tools.ParamQuery:  intent.Query,
		tools.ParamOffset: "0",
		tools.ParamLimit:  strconv.Itoa(o.cfg.Assistant.PageSize),
	}
	result, err := o.dispatch(ctx, tools.CalendarSearch, params)
	if err != nil {
		return toolFailure(tools.CalendarSearch, err), nil
	}

	switch len(result.Items) {
	case 0:
		return Reply{Message: fmt.Sprintf("I couldn't find an event matching %q.", intent.Query)}, nil
	case 1:
		return o.stageEventUpdate(turn.ThreadID, intent, result.Items[0].ID)
	default:
		ids := make([]string, len(result.Items))
		labels := make([]string, len(result.Items))
		for i, item := range result.Items {
			ids[i] = item.ID
			labels[i] = item.Label
		}
		sctx := confirm.SelectionContext{
			ToolName:        intent.Tool,
			Params:          deltaParams(intent.Deltas),
			CandidateIDs:    ids,
			CandidateLabels: labels,
		}
		req, err := o.gate.RequestConfirmation(turn.ThreadID, sctx, "", true)
		if err != nil {
			return nil, err
		}
		o.emit(turn.ThreadID, types.EventConfirmOpened, req.ID)
		return ConfirmationNeeded{Request: req}, nil
	}
}

// stageEventUpdate stages a single known event behind an accept/decline.
func (o *Orchestrator) stageEventUpdate(threadID string, intent perception.WriteIntent, eventID string) (Outcome, error) {
	params := deltaParams(intent.Deltas)
	params[tools.ParamID] = eventID
	req, err := o.gate.RequestConfirmation(threadID, confirm.CalendarMutationContext{
		ToolName: intent.Tool,
		Params:   params,
	}, "", false)
	if err != nil {
		return nil, err
	}
	o.emit(threadID, types.EventConfirmOpened, req.ID)
	return ConfirmationNeeded{Request: req}, nil
}

// deltaParams lifts interpreter field deltas into a tool parameter map.
func deltaParams(deltas map[types.FieldName]string) tools.Params {
	params := make(tools.Params, len(deltas))
	for field, v := range deltas {
		params[field] = v
	}
	return params
}

// handleDelete stages a mutating delete behind the gate. A delete never
// executes directly, even when the target is unambiguous.
func (o *Orchestrator) handleDelete(ctx context.Context, turn types.Turn, intent perception.WriteIntent) (Outcome, error) {
	// An anchored item of the right type is the target.
	if a := o.anchors.Get(turn.ThreadID); a != nil {
		if target, ok := deleteTarget(intent.Tool, a); ok {
			return o.stageDelete(turn.ThreadID, intent.Tool, target, a.Snapshot["label"])
		}
	}

	if intent.Query == "" {
		return Reply{Message: "Which one do you mean? Give me something to search for."}, nil
	}

	// Locate candidates first; the user picks, then confirms by picking.
	searchTool := tools.EmailSearch
	if intent.Tool == tools.CalendarDelete {
		searchTool = tools.CalendarSearch
	}
	params := tools.Params{
		tools.ParamQuery:  intent.Query,
		tools.ParamOffset: "0",
		tools.ParamLimit:  strconv.Itoa(o.cfg.Assistant.PageSize),
	}
	result, err := o.dispatch(ctx, searchTool, params)
	if err != nil {
		return toolFailure(searchTool, err), nil
	}

	switch len(result.Items) {
	case 0:
		return Reply{Message: fmt.Sprintf("I couldn't find anything matching %q.", intent.Query)}, nil
	case 1:
		item := result.Items[0]
		return o.stageDelete(turn.ThreadID, intent.Tool, item.ID, item.Label)
	default:
		ids := make([]string, len(result.Items))
		labels := make([]string, len(result.Items))
		for i, item := range result.Items {
			ids[i] = item.ID
			labels[i] = item.Label
		}
		sctx := confirm.SelectionContext{
			ToolName:        intent.Tool,
			Params:          tools.Params{},
			CandidateIDs:    ids,
			CandidateLabels: labels,
		}
		req, err := o.gate.RequestConfirmation(turn.ThreadID, sctx, "", true)
		if err != nil {
			return nil, err
		}
		o.emit(turn.ThreadID, types.EventConfirmOpened, req.ID)
		return ConfirmationNeeded{Request: req}, nil
	}
}

// stageDelete stages a single known target behind an accept/decline.
func (o *Orchestrator) stageDelete(threadID, toolName, itemID, label string) (Outcome, error) {
	var actx confirm.ActionContext
	prompt := ""
	if toolName == tools.CalendarDelete {
		actx = confirm.CalendarMutationContext{
			ToolName: toolName,
			Params:   tools.Params{tools.ParamID: itemID},
		}
	} else {
		// Single candidate, but still a selection: the resolution carries
		// the id explicitly rather than baking it into shared params.
		actx = confirm.SelectionContext{
			ToolName:        toolName,
			Params:          tools.Params{},
			CandidateIDs:    []string{itemID},
			CandidateLabels: []string{label},
		}
		prompt = fmt.Sprintf("Delete %q?", label)
	}

	req, err := o.gate.RequestConfirmation(threadID, actx, prompt, false)
	if err != nil {
		return nil, err
	}
	o.emit(threadID, types.EventConfirmOpened, req.ID)
	return ConfirmationNeeded{Request: req}, nil
}

// deleteTarget reports whether the anchor already names the delete target.
func deleteTarget(toolName string, a *anchor.Context) (string, bool) {
	switch {
	case toolName == tools.EmailDelete && a.ItemType == anchor.ItemEmail:
		return a.ItemID, true
	case toolName == tools.CalendarDelete && a.ItemType == anchor.ItemCalendarEvent:
		return a.ItemID, true
	}
	return "", false
}

// =============================================================================
// SESSION RESTORATION
// =============================================================================

// RestoreAnchor re-establishes a durable anchor reference after a restart.
// Message references resolve through the draft they spawned.
func (o *Orchestrator) RestoreAnchor(threadID string, itemType anchor.ItemType, itemID string) {
	o.anchors.Restore(threadID, itemType, itemID, engineResolver{engine: o.engine})
}

// Pin anchors an item explicitly, e.g. from a UI row selection.
func (o *Orchestrator) Pin(threadID string, itemType anchor.ItemType, itemID, label string) {
	o.anchorItem(threadID, itemType, tools.Item{ID: itemID, Label: label}, nil)
}

// Unpin clears the thread's anchor without touching any draft.
func (o *Orchestrator) Unpin(threadID string) {
	o.anchors.Clear(threadID)
	o.emit(threadID, types.EventAnchorChanged, "cleared")
}

// =============================================================================
// INTERNALS
// =============================================================================

// dispatch runs one tool call under the configured timeout.
func (o *Orchestrator) dispatch(ctx context.Context, toolName string, params tools.Params) (*tools.Result, error) {
	timer := logging.StartTimer(logging.CategoryTools, "execute "+toolName)
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GetToolTimeout())
	defer cancel()
	return o.executor.Execute(ctx, toolName, params)
}

func (o *Orchestrator) emit(threadID string, kind types.EventKind, payload string) {
	if o.events == nil {
		return
	}
	ev := types.ThreadEvent{
		ThreadID:  threadID,
		Seq:       o.seq.Next(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := o.events.AppendEvent(ev); err != nil {
		logging.RoutingWarn("Dropping transcript event for %s: %v", threadID, err)
	}
}

func appendHistory(history []types.ConversationTurn, userText, assistantText string, window int) []types.ConversationTurn {
	history = append(history,
		types.ConversationTurn{Role: "user", Text: userText},
		types.ConversationTurn{Role: "assistant", Text: assistantText},
	)
	if window <= 0 {
		window = 10
	}
	if max := window * 2; len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}
