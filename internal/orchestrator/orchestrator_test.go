package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"valet/internal/anchor"
	"valet/internal/config"
	"valet/internal/draft"
	"valet/internal/perception"
	"valet/internal/tools"
	"valet/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// execCall records one dispatched tool call for assertion.
type execCall struct {
	Name   string
	Params tools.Params
}

// fakeExecutor scripts tool results per capability and records every call.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []execCall
	fn    func(name string, params tools.Params) (*tools.Result, error)
}

func (f *fakeExecutor) Execute(_ context.Context, name string, params tools.Params) (*tools.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, execCall{Name: name, Params: params.Clone()})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(name, params)
	}
	return &tools.Result{ToolName: name, Total: -1}, nil
}

func (f *fakeExecutor) lastCall(t *testing.T) execCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no tool calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestOrchestrator(exec *fakeExecutor) *Orchestrator {
	cfg := config.DefaultConfig()
	cfg.Assistant.PageSize = 2
	return New(cfg, Deps{
		Classifier:  perception.NewKeywordClassifier(),
		Interpreter: perception.NewHeuristicInterpreter(),
		Registry:    tools.NewCatalogRegistry(),
		Executor:    exec,
	})
}

func userTurn(thread, msg, text string) types.Turn {
	return types.Turn{ThreadID: thread, MessageID: msg, Text: text}
}

func confirmTurn(thread string, accept bool) types.Turn {
	return types.Turn{ThreadID: thread, MessageID: "confirm", Confirmation: &types.ConfirmationResponse{Accept: accept}}
}

func TestComposeSendLifecycle(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)
	ctx := context.Background()

	out, err := o.HandleTurn(ctx, userTurn("t1", "m1", "compose an email, subject is Hello"))
	if err != nil {
		t.Fatalf("compose turn: %v", err)
	}
	du, ok := out.(DraftUpdated)
	if !ok {
		t.Fatalf("outcome = %T, want DraftUpdated", out)
	}
	if du.Validation.IsComplete {
		t.Error("draft complete with only a subject")
	}
	if du.Draft.Fields[types.FieldSubject] != "Hello" {
		t.Errorf("subject = %q", du.Draft.Fields[types.FieldSubject])
	}

	out, err = o.HandleTurn(ctx, userTurn("t1", "m2", "to is bob@example.com, body is Hi Bob"))
	if err != nil {
		t.Fatalf("update turn: %v", err)
	}
	du, ok = out.(DraftUpdated)
	if !ok {
		t.Fatalf("outcome = %T, want DraftUpdated", out)
	}
	if !du.Validation.IsComplete {
		t.Fatalf("draft still missing %v", du.Validation.MissingFields)
	}
	if du.Draft.Status != draft.StatusComplete {
		t.Errorf("status = %s, want complete", du.Draft.Status)
	}

	out, err = o.HandleTurn(ctx, userTurn("t1", "m3", "looks good, send it"))
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	cn, ok := out.(ConfirmationNeeded)
	if !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}
	if cn.Request.RequiresFreeform {
		t.Error("draft send should be accept/decline, not a selection")
	}
	if exec.callCount() != 0 {
		t.Fatal("tool executed before confirmation")
	}

	out, err = o.HandleTurn(ctx, confirmTurn("t1", true))
	if err != nil {
		t.Fatalf("accept turn: %v", err)
	}
	if _, ok := out.(Reply); !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}

	call := exec.lastCall(t)
	if call.Name != tools.EmailSend {
		t.Fatalf("executed %s, want %s", call.Name, tools.EmailSend)
	}
	if call.Params[types.FieldTo] != "bob@example.com" || call.Params[types.FieldSubject] != "Hello" {
		t.Errorf("send params drifted: %v", call.Params)
	}

	d, err := o.Engine().Get(du.Draft.ID)
	if err != nil {
		t.Fatalf("Get after send: %v", err)
	}
	if d.Status != draft.StatusSent {
		t.Errorf("draft status = %s, want sent", d.Status)
	}
}

func TestDeclineKeepsDraftOpen(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	mustTurn(t, o, userTurn("t1", "m1", "compose an email, subject is Plans"))
	mustTurn(t, o, userTurn("t1", "m2", "to is ana@example.com, body is Dinner?"))
	out := mustTurn(t, o, userTurn("t1", "m3", "send it"))
	if _, ok := out.(ConfirmationNeeded); !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}

	out = mustTurn(t, o, confirmTurn("t1", false))
	if _, ok := out.(Reply); !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}
	if exec.callCount() != 0 {
		t.Fatal("declined action still executed")
	}

	// The draft survives a decline; a second send attempt stages again.
	out = mustTurn(t, o, userTurn("t1", "m4", "send it"))
	if _, ok := out.(ConfirmationNeeded); !ok {
		t.Fatalf("second send outcome = %T, want ConfirmationNeeded", out)
	}
}

func TestPaginationContinuation(t *testing.T) {
	inbox := []tools.Item{
		{ID: "e1", Label: "invoice 1"},
		{ID: "e2", Label: "invoice 2"},
		{ID: "e3", Label: "invoice 3"},
		{ID: "e4", Label: "invoice 4"},
		{ID: "e5", Label: "invoice 5"},
	}
	exec := &fakeExecutor{fn: func(name string, params tools.Params) (*tools.Result, error) {
		if name != tools.EmailSearch {
			return nil, fmt.Errorf("unexpected tool %s", name)
		}
		offset := atoi(params[tools.ParamOffset])
		limit := atoi(params[tools.ParamLimit])
		end := offset + limit
		if end > len(inbox) {
			end = len(inbox)
		}
		return &tools.Result{ToolName: name, Items: inbox[offset:end], Total: len(inbox)}, nil
	}}
	o := newTestOrchestrator(exec)

	out := mustTurn(t, o, userTurn("t1", "m1", "search my email for invoices"))
	tr, ok := out.(ToolResult)
	if !ok {
		t.Fatalf("outcome = %T, want ToolResult", out)
	}
	if len(tr.Result.Items) != 2 || !tr.HasMore {
		t.Fatalf("page 1 = %d items hasMore=%v", len(tr.Result.Items), tr.HasMore)
	}
	firstQuery := exec.lastCall(t).Params[tools.ParamQuery]

	out = mustTurn(t, o, userTurn("t1", "m2", "more"))
	tr = out.(ToolResult)
	if tr.Result.Items[0].ID != "e3" || !tr.HasMore {
		t.Fatalf("page 2 = %+v hasMore=%v", tr.Result.Items, tr.HasMore)
	}
	call := exec.lastCall(t)
	if call.Params[tools.ParamQuery] != firstQuery {
		t.Errorf("continuation changed the query: %q vs %q", call.Params[tools.ParamQuery], firstQuery)
	}
	if call.Params[tools.ParamOffset] != "2" {
		t.Errorf("page 2 offset = %s, want 2", call.Params[tools.ParamOffset])
	}

	out = mustTurn(t, o, userTurn("t1", "m3", "more"))
	tr = out.(ToolResult)
	if len(tr.Result.Items) != 1 || tr.HasMore {
		t.Fatalf("page 3 = %d items hasMore=%v", len(tr.Result.Items), tr.HasMore)
	}

	out = mustTurn(t, o, userTurn("t1", "m4", "more"))
	if _, ok := out.(Reply); !ok {
		t.Fatalf("exhausted continuation = %T, want Reply", out)
	}
}

func TestDeleteDisambiguation(t *testing.T) {
	exec := &fakeExecutor{fn: func(name string, params tools.Params) (*tools.Result, error) {
		if name == tools.EmailSearch {
			return &tools.Result{ToolName: name, Items: []tools.Item{
				{ID: "e1", Label: "acme: January invoice"},
				{ID: "e2", Label: "acme: February invoice"},
			}, Total: 2}, nil
		}
		return &tools.Result{ToolName: name}, nil
	}}
	o := newTestOrchestrator(exec)

	out := mustTurn(t, o, userTurn("t1", "m1", "delete the email from acme"))
	cn, ok := out.(ConfirmationNeeded)
	if !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}
	if !cn.Request.RequiresFreeform {
		t.Fatal("two candidates must require a numbered selection")
	}
	if exec.lastCall(t).Name != tools.EmailSearch {
		t.Fatalf("expected a target search, got %s", exec.lastCall(t).Name)
	}

	out = mustTurn(t, o, types.Turn{
		ThreadID:     "t1",
		MessageID:    "m2",
		Confirmation: &types.ConfirmationResponse{Accept: true, Selection: "2"},
	})
	if _, ok := out.(Reply); !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}

	call := exec.lastCall(t)
	if call.Name != tools.EmailDelete {
		t.Fatalf("executed %s, want %s", call.Name, tools.EmailDelete)
	}
	if call.Params[tools.ParamID] != "e2" {
		t.Errorf("deleted id = %s, want e2", call.Params[tools.ParamID])
	}
}

func TestDeleteAnchoredTarget(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	o.Pin("t1", anchor.ItemEmail, "e9", "acme: old invoice")

	out := mustTurn(t, o, userTurn("t1", "m1", "delete this email"))
	cn, ok := out.(ConfirmationNeeded)
	if !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}
	if cn.Request.RequiresFreeform {
		t.Fatal("anchored target should be a plain accept/decline")
	}
	if exec.callCount() != 0 {
		t.Fatal("no search should run when the anchor names the target")
	}

	mustTurn(t, o, confirmTurn("t1", true))
	call := exec.lastCall(t)
	if call.Name != tools.EmailDelete || call.Params[tools.ParamID] != "e9" {
		t.Fatalf("executed %s(%v), want email.delete on e9", call.Name, call.Params)
	}
}

func TestRescheduleAnchoredEvent(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	o.Pin("t1", anchor.ItemCalendarEvent, "ev9", "Dentist")

	out := mustTurn(t, o, userTurn("t1", "m1", "reschedule my dentist appointment, start is 2026-09-01T11:00:00Z"))
	cn, ok := out.(ConfirmationNeeded)
	if !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}
	if cn.Request.RequiresFreeform {
		t.Fatal("anchored target should be a plain accept/decline")
	}
	if exec.callCount() != 0 {
		t.Fatal("no tool may run before the change is confirmed")
	}

	mustTurn(t, o, confirmTurn("t1", true))
	call := exec.lastCall(t)
	if call.Name != tools.CalendarPatch {
		t.Fatalf("executed %s, want %s", call.Name, tools.CalendarPatch)
	}
	if call.Params[tools.ParamID] != "ev9" {
		t.Errorf("patched id = %s, want ev9", call.Params[tools.ParamID])
	}
	if call.Params[types.FieldStart] != "2026-09-01T11:00:00Z" {
		t.Errorf("start = %q", call.Params[types.FieldStart])
	}
}

func TestRescheduleSearchesForTarget(t *testing.T) {
	exec := &fakeExecutor{fn: func(name string, params tools.Params) (*tools.Result, error) {
		if name == tools.CalendarSearch {
			return &tools.Result{ToolName: name, Items: []tools.Item{
				{ID: "ev1", Label: "standup Monday"},
				{ID: "ev2", Label: "standup Tuesday"},
			}, Total: 2}, nil
		}
		return &tools.Result{ToolName: name}, nil
	}}
	o := newTestOrchestrator(exec)

	out := mustTurn(t, o, userTurn("t1", "m1", "reschedule the standup, start is 2026-09-02T10:00:00Z"))
	cn, ok := out.(ConfirmationNeeded)
	if !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}
	if !cn.Request.RequiresFreeform {
		t.Fatal("two candidates must require a numbered selection")
	}
	if exec.lastCall(t).Name != tools.CalendarSearch {
		t.Fatalf("expected a target search, got %s", exec.lastCall(t).Name)
	}

	mustTurn(t, o, types.Turn{
		ThreadID:     "t1",
		MessageID:    "m2",
		Confirmation: &types.ConfirmationResponse{Accept: true, Selection: "1"},
	})
	call := exec.lastCall(t)
	if call.Name != tools.CalendarPatch {
		t.Fatalf("executed %s, want %s", call.Name, tools.CalendarPatch)
	}
	if call.Params[tools.ParamID] != "ev1" || call.Params[types.FieldStart] != "2026-09-02T10:00:00Z" {
		t.Errorf("patch params = %v", call.Params)
	}
}

func TestUnansweredConfirmationIsAbandoned(t *testing.T) {
	exec := &fakeExecutor{fn: func(name string, params tools.Params) (*tools.Result, error) {
		return &tools.Result{ToolName: name, Items: []tools.Item{
			{ID: "ev1", Label: "standup"},
			{ID: "ev2", Label: "planning"},
		}, Total: 2}, nil
	}}
	o := newTestOrchestrator(exec)

	mustTurn(t, o, userTurn("t1", "m1", "compose an email, subject is Hi"))
	mustTurn(t, o, userTurn("t1", "m2", "to is bob@example.com, body is Hello"))
	out := mustTurn(t, o, userTurn("t1", "m3", "send it"))
	if _, ok := out.(ConfirmationNeeded); !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}

	// An unrelated question abandons the pending send and routes normally.
	out = mustTurn(t, o, userTurn("t1", "m4", "what meetings do I have today"))
	tr, ok := out.(ToolResult)
	if !ok {
		t.Fatalf("outcome = %T, want ToolResult", out)
	}
	if tr.Note == "" {
		t.Error("abandon should be surfaced to the user")
	}
	if exec.lastCall(t).Name != tools.CalendarSearch {
		t.Errorf("routed to %s, want calendar search", exec.lastCall(t).Name)
	}
	if exec.callCount() != 1 {
		t.Errorf("call count = %d, the abandoned send must not execute", exec.callCount())
	}

	// A later accept has nothing to act on.
	out = mustTurn(t, o, confirmTurn("t1", true))
	if _, ok := out.(Reply); !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}
	if exec.callCount() != 1 {
		t.Error("accept after abandon executed something")
	}
}

// scriptedInterpreter drives routes the heuristic interpreter cannot reach,
// like a targeted email.get extraction.
type scriptedInterpreter struct {
	perception.Interpreter
	readTool   string
	readParams tools.Params
}

func (s scriptedInterpreter) ExtractReadCall(context.Context, []types.ConversationTurn, string, perception.Label) (string, tools.Params, error) {
	return s.readTool, s.readParams.Clone(), nil
}

func TestReplyPrepopulatesRecipients(t *testing.T) {
	exec := &fakeExecutor{fn: func(name string, params tools.Params) (*tools.Result, error) {
		if name == tools.EmailGet {
			return &tools.Result{
				ToolName: name,
				Items:    []tools.Item{{ID: "e7", Label: "Dana: lunch?"}},
				Total:    1,
				Meta:     map[string]string{"from": "dana@example.com", "cc": "sam@example.com"},
			}, nil
		}
		return &tools.Result{ToolName: name}, nil
	}}
	cfg := config.DefaultConfig()
	o := New(cfg, Deps{
		Classifier: perception.NewKeywordClassifier(),
		Interpreter: scriptedInterpreter{
			Interpreter: perception.NewHeuristicInterpreter(),
			readTool:    tools.EmailGet,
			readParams:  tools.Params{tools.ParamID: "e7"},
		},
		Registry: tools.NewCatalogRegistry(),
		Executor: exec,
	})

	mustTurn(t, o, userTurn("t1", "m1", "read the email from dana"))
	out := mustTurn(t, o, userTurn("t1", "m2", "reply and tell her yes"))
	du, ok := out.(DraftUpdated)
	if !ok {
		t.Fatalf("outcome = %T, want DraftUpdated", out)
	}
	if du.Draft.Fields[types.FieldTo] != "dana@example.com" {
		t.Errorf("reply to = %q, want the sender", du.Draft.Fields[types.FieldTo])
	}
	if du.Draft.Fields[types.FieldCc] != "sam@example.com" {
		t.Errorf("reply cc = %q, want carried over", du.Draft.Fields[types.FieldCc])
	}
	if du.Draft.Reply == nil || du.Draft.Reply.SourceItemRef != "e7" {
		t.Error("reply draft lost its source reference")
	}
	// Replies don't require a subject; body is the only gap.
	if len(du.Validation.MissingFields) != 1 || du.Validation.MissingFields[0] != types.FieldBody {
		t.Errorf("missing = %v, want [body]", du.Validation.MissingFields)
	}
}

func TestAbandonNoticeOnDraftOutcome(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	mustTurn(t, o, userTurn("t1", "m1", "compose an email, subject is Hi"))
	mustTurn(t, o, userTurn("t1", "m2", "to is bob@example.com, body is Hello"))
	out := mustTurn(t, o, userTurn("t1", "m3", "send it"))
	if _, ok := out.(ConfirmationNeeded); !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}

	// Starting a second draft instead of answering abandons the pending
	// send; the user is told even though the turn produced a draft outcome.
	out = mustTurn(t, o, userTurn("t1", "m4", "compose another email, subject is Second"))
	du, ok := out.(DraftUpdated)
	if !ok {
		t.Fatalf("outcome = %T, want DraftUpdated", out)
	}
	if du.Note == "" {
		t.Error("abandon should be surfaced on draft outcomes")
	}
	if exec.callCount() != 0 {
		t.Error("abandoned send executed")
	}
}

func TestNewDraftDetachesActiveOne(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	out := mustTurn(t, o, userTurn("t1", "m1", "compose an email, subject is First"))
	first := out.(DraftUpdated).Draft

	out = mustTurn(t, o, userTurn("t1", "m2", "compose another email, subject is Second"))
	second, ok := out.(DraftUpdated)
	if !ok {
		t.Fatalf("outcome = %T, want DraftUpdated", out)
	}
	if second.Draft.ID == first.ID {
		t.Fatal("second compose reused the first draft")
	}

	// The first draft is detached, not discarded.
	d, err := o.Engine().Get(first.ID)
	if err != nil {
		t.Fatalf("first draft gone: %v", err)
	}
	if d.Status != draft.StatusOpen {
		t.Errorf("first draft status = %s, want open", d.Status)
	}
}

func TestGeneralTurnGetsHelp(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	out := mustTurn(t, o, userTurn("t1", "m1", "hello there"))
	if _, ok := out.(Reply); !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}
	if exec.callCount() != 0 {
		t.Error("smalltalk dispatched a tool")
	}
}

// recordingSink captures transcript events for ordering assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []types.ThreadEvent
}

func (r *recordingSink) AppendEvent(ev types.ThreadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) byThread() map[string][]types.ThreadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]types.ThreadEvent)
	for _, ev := range r.events {
		out[ev.ThreadID] = append(out[ev.ThreadID], ev)
	}
	return out
}

func TestConcurrentTurnsSerializePerThread(t *testing.T) {
	sink := &recordingSink{}
	exec := &fakeExecutor{}
	cfg := config.DefaultConfig()
	cfg.Assistant.PageSize = 2
	o := New(cfg, Deps{
		Classifier:  perception.NewKeywordClassifier(),
		Interpreter: perception.NewHeuristicInterpreter(),
		Registry:    tools.NewCatalogRegistry(),
		Executor:    exec,
		Events:      sink,
	})

	const turns = 25
	var wg sync.WaitGroup
	for _, thread := range []string{"t1", "t2"} {
		for i := 0; i < turns; i++ {
			wg.Add(1)
			go func(thread string, i int) {
				defer wg.Done()
				turn := userTurn(thread, fmt.Sprintf("m%d", i), "hello there")
				if _, err := o.HandleTurn(context.Background(), turn); err != nil {
					t.Errorf("HandleTurn on %s: %v", thread, err)
				}
			}(thread, i)
		}
	}
	wg.Wait()

	for thread, evs := range sink.byThread() {
		if len(evs) != turns*2 {
			t.Fatalf("thread %s recorded %d events, want %d", thread, len(evs), turns*2)
		}
		// Serialization means one turn finishes before the next starts:
		// received/outcome pairs never interleave within a thread.
		for i, ev := range evs {
			want := types.EventTurnReceived
			if i%2 == 1 {
				want = types.EventOutcome
			}
			if ev.Kind != want {
				t.Fatalf("thread %s event %d = %s, want %s", thread, i, ev.Kind, want)
			}
		}
		// Seq markers are strictly increasing in emission order.
		for i := 1; i < len(evs); i++ {
			if evs[i].Seq <= evs[i-1].Seq {
				t.Fatalf("thread %s Seq regressed at %d: %s then %s", thread, i, evs[i-1].Seq, evs[i].Seq)
			}
		}
	}
}

func TestThreadsDoNotShareState(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec)

	mustTurn(t, o, userTurn("t1", "m1", "compose an email, subject is Hi"))
	mustTurn(t, o, userTurn("t1", "m2", "to is a@b.c, body is Hey"))
	out := mustTurn(t, o, userTurn("t1", "m3", "send it"))
	if _, ok := out.(ConfirmationNeeded); !ok {
		t.Fatalf("outcome = %T, want ConfirmationNeeded", out)
	}

	// Thread t2 has no pending confirmation and no anchored draft.
	out = mustTurn(t, o, confirmTurn("t2", true))
	r, ok := out.(Reply)
	if !ok {
		t.Fatalf("outcome = %T, want Reply", out)
	}
	if r.Message == "Done." {
		t.Error("t2 accept executed t1's staged action")
	}
	if exec.callCount() != 0 {
		t.Error("cross-thread accept dispatched a tool")
	}
}

func mustTurn(t *testing.T, o *Orchestrator, turn types.Turn) Outcome {
	t.Helper()
	out, err := o.HandleTurn(context.Background(), turn)
	if err != nil {
		t.Fatalf("HandleTurn(%q): %v", turn.Text, err)
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
