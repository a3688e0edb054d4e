package confirm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"valet/internal/logging"
	"valet/internal/types"
)

// Gate errors.
var (
	// ErrConflictingConfirmation is returned when a request is staged while
	// another one is still pending for the same thread. This is a protocol
	// violation by the caller, not a user mistake.
	ErrConflictingConfirmation = errors.New("confirmation already pending for thread")

	// ErrNoPendingRequest is returned when resolving a thread with no
	// outstanding request.
	ErrNoPendingRequest = errors.New("no pending confirmation for thread")
)

// Decision is the outcome of resolving a confirmation request.
type Decision string

const (
	// Accepted means the user approved the staged action.
	Accepted Decision = "accepted"

	// Declined means the user rejected the staged action.
	Declined Decision = "declined"

	// Invalid means the response did not follow the expected protocol
	// (e.g. a non-numeric reply to a numbered selection). The gated action
	// is not triggered.
	Invalid Decision = "invalid"
)

// Request is one outstanding confirmation. At most one exists per thread.
type Request struct {
	ID       string
	ThreadID string

	// Context is the staged action payload, returned verbatim on Accepted.
	Context ActionContext

	// Prompt is the human-readable description shown to the user.
	Prompt string

	// RequiresFreeform is true when the decision is a numeric selection
	// rather than a plain accept/decline.
	RequiresFreeform bool

	CreatedAt time.Time
}

// Resolution is the result of Resolve.
type Resolution struct {
	Decision Decision

	// Context is set only when Decision is Accepted. It is the exact value
	// staged at request time, never reconstructed.
	Context ActionContext

	// SelectedID carries the chosen candidate for accepted selections.
	SelectedID string

	// Reason explains Invalid decisions for the conversational reply.
	Reason string
}

// Gate tracks the per-thread confirmation state machine:
//
//	NoRequest → Pending → {Accepted, Declined, Invalid} → NoRequest
//
// The gate only gates; it performs no external call itself.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*Request // threadID -> outstanding request
}

// NewGate creates an empty confirmation gate.
func NewGate() *Gate {
	return &Gate{pending: make(map[string]*Request)}
}

// RequestConfirmation stages a new confirmation for a thread. Fails with
// ErrConflictingConfirmation while another request is pending.
func (g *Gate) RequestConfirmation(threadID string, ctx ActionContext, prompt string, requiresFreeform bool) (*Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.pending[threadID]; ok {
		logging.ConfirmDebug("Rejecting second confirmation for thread %s (pending=%s)", threadID, existing.ID)
		return nil, fmt.Errorf("%w: %s", ErrConflictingConfirmation, threadID)
	}

	if prompt == "" {
		prompt = ctx.Describe()
	}

	req := &Request{
		ID:               uuid.NewString(),
		ThreadID:         threadID,
		Context:          ctx,
		Prompt:           prompt,
		RequiresFreeform: requiresFreeform,
		CreatedAt:        time.Now(),
	}
	g.pending[threadID] = req

	logging.Confirm("Staged confirmation %s for thread %s (tool=%s, freeform=%v)",
		req.ID, threadID, ctx.Tool(), requiresFreeform)
	return req, nil
}

// Pending returns the thread's outstanding request, or nil.
func (g *Gate) Pending(threadID string) *Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[threadID]
}

// Abandon drops the thread's outstanding request without resolving it.
// Returns true if a request was pending. Used when a new user turn moves on
// instead of answering.
func (g *Gate) Abandon(threadID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[threadID]
	if !ok {
		return false
	}
	delete(g.pending, threadID)
	logging.Confirm("Abandoned confirmation %s for thread %s", req.ID, threadID)
	return true
}

// Resolve applies the user's response to the thread's outstanding request.
// Whatever the decision, the request is cleared and the gate returns to
// NoRequest for the thread.
func (g *Gate) Resolve(threadID string, resp types.ConfirmationResponse) (*Resolution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingRequest, threadID)
	}
	delete(g.pending, threadID)

	if req.RequiresFreeform {
		res := g.resolveSelection(req, resp)
		logging.Confirm("Resolved confirmation %s: %s", req.ID, res.Decision)
		return res, nil
	}

	if resp.Selection != "" {
		// A numbered reply to a plain accept/decline does not follow the
		// protocol.
		logging.Confirm("Resolved confirmation %s: invalid (unexpected selection)", req.ID)
		return &Resolution{Decision: Invalid, Reason: "expected yes or no, not a selection"}, nil
	}

	if !resp.Accept {
		logging.Confirm("Resolved confirmation %s: declined", req.ID)
		return &Resolution{Decision: Declined}, nil
	}

	logging.Confirm("Resolved confirmation %s: accepted (tool=%s)", req.ID, req.Context.Tool())
	res := &Resolution{Decision: Accepted, Context: req.Context}

	// A sole-candidate selection staged as a plain accept still resolves
	// to that candidate.
	if sel, ok := req.Context.(SelectionContext); ok && len(sel.CandidateIDs) == 1 {
		res.SelectedID = sel.CandidateIDs[0]
	}
	return res, nil
}

// resolveSelection matches a freeform numeric reply against the staged
// candidate set. Anything that is not a valid 1-based index is Invalid, not
// Declined.
func (g *Gate) resolveSelection(req *Request, resp types.ConfirmationResponse) *Resolution {
	sel, ok := req.Context.(SelectionContext)
	if !ok {
		return &Resolution{Decision: Invalid, Reason: "request is not a selection"}
	}

	choice := strings.TrimSpace(resp.Selection)
	n, err := strconv.Atoi(choice)
	if err != nil {
		return &Resolution{Decision: Invalid, Reason: fmt.Sprintf("%q is not a number", choice)}
	}
	if n < 1 || n > len(sel.CandidateIDs) {
		return &Resolution{Decision: Invalid, Reason: fmt.Sprintf("choose a number between 1 and %d", len(sel.CandidateIDs))}
	}

	// The staged context is returned untouched; the chosen candidate rides
	// alongside it.
	return &Resolution{Decision: Accepted, Context: sel, SelectedID: sel.CandidateIDs[n-1]}
}
