// Package anchor tracks which prior item (email, event, draft, or message)
// the current conversation turn is scoped to.
//
// Anchoring is per-thread and single-slot, not a stack: setting a new anchor
// replaces the old one without side effects on the replaced item.
package anchor

import (
	"sync"

	"valet/internal/logging"
)

// ItemType classifies what an anchor points at.
type ItemType string

const (
	ItemEmail         ItemType = "email"
	ItemCalendarEvent ItemType = "calendar_event"
	ItemDraft         ItemType = "draft"
	ItemMessage       ItemType = "message"
)

// Context is the anchored item plus a denormalized copy of its display
// fields. The snapshot is refreshed whenever an anchored draft's fields
// change.
type Context struct {
	ItemType ItemType
	ItemID   string
	Snapshot map[string]string
}

// clone guards the manager's map against caller mutation.
func (c *Context) clone() *Context {
	out := &Context{ItemType: c.ItemType, ItemID: c.ItemID}
	if c.Snapshot != nil {
		out.Snapshot = make(map[string]string, len(c.Snapshot))
		for k, v := range c.Snapshot {
			out.Snapshot[k] = v
		}
	}
	return out
}

// Resolver re-resolves a durable anchor reference when a session resumes.
// Implemented by the draft engine/store pair.
type Resolver interface {
	// DraftByID returns the snapshot for a live draft, if it exists.
	DraftByID(draftID string) (snapshot map[string]string, ok bool)

	// DraftByMessage returns the draft spawned by a prior user turn, if any.
	DraftByMessage(threadID, messageID string) (draftID string, snapshot map[string]string, ok bool)
}

// Manager holds the per-thread anchor slots.
type Manager struct {
	mu      sync.RWMutex
	anchors map[string]*Context // threadID -> anchor
}

// NewManager creates an empty anchor manager.
func NewManager() *Manager {
	return &Manager{anchors: make(map[string]*Context)}
}

// Set anchors a thread to an item, replacing any previous anchor.
func (m *Manager) Set(threadID string, itemType ItemType, itemID string, snapshot map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.anchors[threadID] = (&Context{ItemType: itemType, ItemID: itemID, Snapshot: snapshot}).clone()
	logging.Anchor("Thread %s anchored to %s %s", threadID, itemType, itemID)
}

// Clear removes a thread's anchor.
func (m *Manager) Clear(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.anchors[threadID]; ok {
		delete(m.anchors, threadID)
		logging.Anchor("Thread %s anchor cleared", threadID)
	}
}

// Get returns the thread's anchor, or nil when none is set.
func (m *Manager) Get(threadID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.anchors[threadID]
	if !ok {
		return nil
	}
	return c.clone()
}

// RefreshSnapshot replaces the snapshot of the current anchor. No-op when
// the thread has no anchor.
func (m *Manager) RefreshSnapshot(threadID string, snapshot map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.anchors[threadID]
	if !ok {
		return
	}
	m.anchors[threadID] = (&Context{ItemType: c.ItemType, ItemID: c.ItemID, Snapshot: snapshot}).clone()
	logging.AnchorDebug("Thread %s anchor snapshot refreshed (%d fields)", threadID, len(snapshot))
}

// Restore re-establishes an anchor from a durable reference. Draft anchors
// resolve by draft id; message anchors resolve through the message→draft
// reverse lookup and come back as Draft anchors. If resolution fails, the
// thread's anchor is left empty rather than erroring.
func (m *Manager) Restore(threadID string, itemType ItemType, itemID string, r Resolver) {
	switch itemType {
	case ItemDraft:
		if snapshot, ok := r.DraftByID(itemID); ok {
			m.Set(threadID, ItemDraft, itemID, snapshot)
			return
		}
	case ItemMessage:
		if draftID, snapshot, ok := r.DraftByMessage(threadID, itemID); ok {
			m.Set(threadID, ItemDraft, draftID, snapshot)
			return
		}
	case ItemEmail, ItemCalendarEvent:
		// External items carry no local state to re-resolve; the durable
		// reference itself is the anchor.
		m.Set(threadID, itemType, itemID, nil)
		return
	}

	logging.Anchor("Thread %s anchor %s %s could not be restored, leaving empty", threadID, itemType, itemID)
	m.Clear(threadID)
}
