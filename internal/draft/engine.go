package draft

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"valet/internal/confirm"
	"valet/internal/logging"
	"valet/internal/tools"
	"valet/internal/types"
)

// Engine errors. State-machine violations are surfaced verbatim to the
// caller; they indicate a protocol violation, not a user mistake.
var (
	// ErrDuplicateOpenDraft is returned when creating a draft while the
	// thread already has an open one anchored.
	ErrDuplicateOpenDraft = errors.New("thread already has an open draft")

	// ErrDraftNotFound is returned for an unknown draft id.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrDraftAlreadySent is returned when mutating a sent draft.
	ErrDraftAlreadySent = errors.New("draft already sent")

	// ErrDraftDiscarded is returned when mutating a discarded draft.
	ErrDraftDiscarded = errors.New("draft discarded")

	// ErrDraftIncomplete is returned by RequestSend while required fields
	// are missing. An incomplete draft never sends partial data.
	ErrDraftIncomplete = errors.New("draft incomplete")
)

// Store persists drafts so anchors survive a process restart. The engine
// works without one; persistence failures are logged, not surfaced, since
// the in-memory state remains authoritative for the session.
type Store interface {
	SaveDraft(d *Draft) error
}

// Engine owns all drafts, keyed by thread. At most one non-terminal draft is
// active (anchored) per thread at a time.
type Engine struct {
	mu     sync.RWMutex
	drafts map[string]*Draft // draftID -> draft

	// activeByThread maps threadID to the draft currently anchored for it.
	activeByThread map[string]string

	gate  *confirm.Gate
	store Store
}

// NewEngine creates a draft engine staging sends through the given gate.
// store may be nil.
func NewEngine(gate *confirm.Gate, store Store) *Engine {
	return &Engine{
		drafts:         make(map[string]*Draft),
		activeByThread: make(map[string]string),
		gate:           gate,
		store:          store,
	}
}

// Create stages a new draft for a thread and makes it the thread's active
// draft. Fails with ErrDuplicateOpenDraft while another draft is active;
// the caller must send or discard it first, or detach it explicitly.
func (e *Engine) Create(kind Kind, threadID, originMessageID string, reply *ReplyContext) (*Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if activeID, ok := e.activeByThread[threadID]; ok {
		if active := e.drafts[activeID]; active != nil && !active.Terminal() {
			return nil, fmt.Errorf("%w: %s has %s", ErrDuplicateOpenDraft, threadID, activeID)
		}
	}

	now := time.Now()
	d := &Draft{
		ID:              uuid.NewString(),
		Kind:            kind,
		ThreadID:        threadID,
		OriginMessageID: originMessageID,
		Fields:          make(map[types.FieldName]string),
		Reply:           reply,
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Reply drafts are born with recipients pre-populated, before the
	// draft is ever shown as incomplete.
	if reply != nil && kind == KindEmail {
		if reply.To != "" {
			d.Fields[types.FieldTo] = reply.To
		}
		if reply.Cc != "" {
			d.Fields[types.FieldCc] = reply.Cc
		}
	}
	recomputeStatus(d)

	e.drafts[d.ID] = d
	e.activeByThread[threadID] = d.ID
	e.persist(d)

	logging.Drafts("Created %s draft %s for thread %s (origin=%s, reply=%v)",
		kind, d.ID, threadID, originMessageID, reply != nil)
	return d.Clone(), nil
}

// Get returns a copy of a draft by id.
func (e *Engine) Get(draftID string) (*Draft, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	return d.Clone(), nil
}

// Active returns the thread's anchored draft, or nil when none is active.
func (e *Engine) Active(threadID string) *Draft {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.activeByThread[threadID]
	if !ok {
		return nil
	}
	d := e.drafts[id]
	if d == nil || d.Terminal() {
		return nil
	}
	return d.Clone()
}

// Detach un-anchors the thread's active draft without discarding it. The
// draft stays addressable by id.
func (e *Engine) Detach(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.activeByThread[threadID]; ok {
		delete(e.activeByThread, threadID)
		logging.Drafts("Detached draft %s from thread %s", id, threadID)
	}
}

// Attach makes an existing non-terminal draft the thread's active one,
// implicitly detaching the previous draft without discarding it.
func (e *Engine) Attach(threadID, draftID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if err := terminalErr(d); err != nil {
		return err
	}
	e.activeByThread[threadID] = draftID
	logging.Drafts("Attached draft %s to thread %s", draftID, threadID)
	return nil
}

// Update merges field deltas into a draft, last-write-wins per field. An
// empty delta value clears the field. The fresh draft and its validation are
// returned inline so callers never need a follow-up poll.
func (e *Engine) Update(draftID string, deltas map[types.FieldName]string) (*Draft, Validation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return nil, Validation{}, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if err := terminalErr(d); err != nil {
		return nil, Validation{}, err
	}

	for field, value := range deltas {
		if value == "" {
			delete(d.Fields, field)
		} else {
			d.Fields[field] = value
		}
	}
	d.UpdatedAt = time.Now()
	recomputeStatus(d)
	e.persist(d)

	v := validate(d)
	logging.DraftsDebug("Updated draft %s (%d deltas, complete=%v, missing=%v)",
		draftID, len(deltas), v.IsComplete, v.MissingFields)
	return d.Clone(), v, nil
}

// Validate reports completeness and missing fields for a draft.
func (e *Engine) Validate(draftID string) (Validation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return Validation{}, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	return validate(d), nil
}

// RequestSend stages the draft's fully-resolved tool call behind the
// confirmation gate. Fails with ErrDraftIncomplete while required fields are
// missing. Retrying after a failure is idempotent against the fields.
func (e *Engine) RequestSend(draftID string) (*confirm.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if err := terminalErr(d); err != nil {
		return nil, err
	}
	if v := validate(d); !v.IsComplete {
		return nil, fmt.Errorf("%w: missing %v", ErrDraftIncomplete, v.MissingFields)
	}

	ctx := actionContext(d)
	req, err := e.gate.RequestConfirmation(d.ThreadID, ctx, "", false)
	if err != nil {
		return nil, err
	}

	logging.Drafts("Requested send for draft %s (confirmation=%s)", draftID, req.ID)
	return req, nil
}

// MarkSent transitions a draft to Sent after the gated call executed
// successfully. The draft stops being the thread's active draft.
func (e *Engine) MarkSent(draftID string) error {
	return e.finalize(draftID, StatusSent)
}

// Discard terminally cancels a draft.
func (e *Engine) Discard(draftID string) error {
	return e.finalize(draftID, StatusDiscarded)
}

func (e *Engine) finalize(draftID string, status Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.drafts[draftID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if err := terminalErr(d); err != nil {
		return err
	}

	d.Status = status
	d.UpdatedAt = time.Now()
	if e.activeByThread[d.ThreadID] == draftID {
		delete(e.activeByThread, d.ThreadID)
	}
	e.persist(d)

	logging.Drafts("Draft %s -> %s", draftID, status)
	return nil
}

// ByOriginMessage returns the draft spawned by a given user turn, if any.
// Used to restore anchors after a reload.
func (e *Engine) ByOriginMessage(threadID, messageID string) *Draft {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, d := range e.drafts {
		if d.ThreadID == threadID && d.OriginMessageID == messageID {
			return d.Clone()
		}
	}
	return nil
}

// Restore loads a previously persisted draft back into the engine, e.g. when
// resuming a session. Terminal drafts are loaded but not re-anchored.
func (e *Engine) Restore(d *Draft) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drafts[d.ID] = d.Clone()
	if !d.Terminal() {
		e.activeByThread[d.ThreadID] = d.ID
	}
}

func (e *Engine) persist(d *Draft) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveDraft(d.Clone()); err != nil {
		logging.Get(logging.CategoryDrafts).Warn("Failed to persist draft %s: %v", d.ID, err)
	}
}

func terminalErr(d *Draft) error {
	switch d.Status {
	case StatusSent:
		return fmt.Errorf("%w: %s", ErrDraftAlreadySent, d.ID)
	case StatusDiscarded:
		return fmt.Errorf("%w: %s", ErrDraftDiscarded, d.ID)
	default:
		return nil
	}
}

// actionContext derives the fully-resolved confirmation payload from the
// draft's fields. Reply recipients and refs come from the reply context.
func actionContext(d *Draft) confirm.ActionContext {
	params := make(tools.Params, len(d.Fields))
	for k, v := range d.Fields {
		params[k] = v
	}

	switch d.Kind {
	case KindCalendarEvent:
		return confirm.CalendarMutationContext{
			ToolName: tools.CalendarCreate,
			Params:   params,
			DraftID:  d.ID,
		}
	default:
		toolName := tools.EmailSend
		if d.Reply != nil {
			toolName = tools.EmailReply
			params[tools.ParamReplyRef] = d.Reply.SourceItemRef
		}
		return confirm.EmailSendContext{
			ToolName: toolName,
			Params:   params,
			DraftID:  d.ID,
		}
	}
}
