// Package pagination manages continuation state for tool calls whose result
// sets are larger than one page.
//
// The central invariant: every page of a cursor's lineage re-issues the
// original query parameters verbatim, only the offset advances. This guards
// against a results filter silently drifting across pages.
package pagination

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"valet/internal/logging"
	"valet/internal/tools"
)

// TotalUnknown marks a cursor whose backend does not report a total count.
// Continuation is then heuristic: a full page means there may be more.
const TotalUnknown = -1

// Cursor is the opaque continuation state for one paged tool call.
type Cursor struct {
	// ID identifies the cursor lineage.
	ID string

	// ToolName is the capability the cursor was opened for.
	ToolName string

	// Offset is the offset of the most recently fetched page.
	Offset int

	// Limit is the page size, fixed at open time.
	Limit int

	// Total is the total number of available items, or TotalUnknown.
	Total int

	// originalParams is the page-1 query, private so no caller can drift it.
	originalParams tools.Params

	// lastPageLen is the item count of the most recently observed page.
	lastPageLen int
}

// ErrCursorExhausted is returned by NextPage when no further page exists.
var ErrCursorExhausted = errors.New("cursor has no more pages")

// Open creates a cursor from the first page of a tool result.
// params must be the exact query used for page 1; the cursor keeps its own
// copy. total may be TotalUnknown.
func Open(toolName string, params tools.Params, limit int, firstPage *tools.Result) *Cursor {
	total := TotalUnknown
	if firstPage.Total >= 0 {
		total = firstPage.Total
	}

	c := &Cursor{
		ID:             uuid.NewString(),
		ToolName:       toolName,
		Offset:         0,
		Limit:          limit,
		Total:          total,
		originalParams: params.Clone(),
		lastPageLen:    len(firstPage.Items),
	}

	logging.Cursor("Opened cursor %s for %s (limit=%d, total=%d, has_more=%v)",
		c.ID, toolName, limit, total, c.HasMore())
	return c
}

// HasMore reports whether another page is available after the last
// observed one.
func (c *Cursor) HasMore() bool {
	if c.Total != TotalUnknown {
		return c.Offset+c.lastPageLen < c.Total
	}
	// Unknown total: a full page implies continuation, a short page ends it.
	return c.lastPageLen == c.Limit
}

// NextPage advances the cursor and returns the query to re-issue: the
// original parameters verbatim plus the new offset. The caller must execute
// the identical tool call and then record the page via Observe.
func (c *Cursor) NextPage() (tools.Params, int, error) {
	if !c.HasMore() {
		return nil, 0, ErrCursorExhausted
	}

	c.Offset += c.Limit
	return c.originalParams.Clone(), c.Offset, nil
}

// Rewind undoes the last NextPage advance after a failed fetch, so the
// next continuation re-requests the same page.
func (c *Cursor) Rewind() {
	if c.Offset >= c.Limit {
		c.Offset -= c.Limit
	}
	logging.Cursor("Cursor %s rewound to offset %d after failed fetch", c.ID, c.Offset)
}

// Observe records the page fetched at the cursor's current offset.
func (c *Cursor) Observe(page *tools.Result) {
	c.lastPageLen = len(page.Items)
	if page.Total >= 0 {
		c.Total = page.Total
	}
	logging.Cursor("Cursor %s observed page at offset %d (%d items, has_more=%v)",
		c.ID, c.Offset, c.lastPageLen, c.HasMore())
}

// OriginalParams returns a copy of the page-1 query parameters.
func (c *Cursor) OriginalParams() tools.Params {
	return c.originalParams.Clone()
}

// Manager tracks the active cursor per conversation thread so a "next page"
// turn can resume the most recent paged result set. Single slot per thread:
// opening a new cursor replaces the old one.
type Manager struct {
	mu      sync.RWMutex
	cursors map[string]*Cursor // threadID -> active cursor
}

// NewManager creates an empty cursor manager.
func NewManager() *Manager {
	return &Manager{cursors: make(map[string]*Cursor)}
}

// Put sets the active cursor for a thread.
func (m *Manager) Put(threadID string, c *Cursor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[threadID] = c
}

// Get returns the active cursor for a thread, or nil.
func (m *Manager) Get(threadID string) *Cursor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[threadID]
}

// Clear removes the active cursor for a thread.
func (m *Manager) Clear(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, threadID)
}
