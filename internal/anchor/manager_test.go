package anchor

import "testing"

func TestSetGetClear(t *testing.T) {
	m := NewManager()

	if m.Get("t1") != nil {
		t.Error("fresh thread should have no anchor")
	}

	m.Set("t1", ItemEmail, "msg-1", map[string]string{"subject": "Invoice"})

	got := m.Get("t1")
	if got == nil {
		t.Fatal("anchor should be set")
	}
	if got.ItemType != ItemEmail || got.ItemID != "msg-1" {
		t.Errorf("anchor = %+v, want email msg-1", got)
	}
	if got.Snapshot["subject"] != "Invoice" {
		t.Errorf("snapshot = %v", got.Snapshot)
	}

	m.Clear("t1")
	if m.Get("t1") != nil {
		t.Error("cleared thread should have no anchor")
	}
}

func TestSingleSlotReplacement(t *testing.T) {
	m := NewManager()
	m.Set("t1", ItemDraft, "d1", nil)
	m.Set("t1", ItemDraft, "d2", nil)

	got := m.Get("t1")
	if got.ItemID != "d2" {
		t.Errorf("anchor = %s, want d2 (replacement, not a stack)", got.ItemID)
	}
}

func TestAnchorsArePerThread(t *testing.T) {
	m := NewManager()
	m.Set("t1", ItemDraft, "d1", nil)
	m.Set("t2", ItemEmail, "msg-1", nil)

	if m.Get("t1").ItemID != "d1" || m.Get("t2").ItemID != "msg-1" {
		t.Error("threads must not share anchor slots")
	}

	m.Clear("t1")
	if m.Get("t2") == nil {
		t.Error("clearing t1 must not affect t2")
	}
}

func TestRefreshSnapshot(t *testing.T) {
	m := NewManager()

	// No anchor: refresh is a no-op, not a create.
	m.RefreshSnapshot("t1", map[string]string{"x": "y"})
	if m.Get("t1") != nil {
		t.Error("refresh must not create an anchor")
	}

	m.Set("t1", ItemDraft, "d1", map[string]string{"subject": "old"})
	m.RefreshSnapshot("t1", map[string]string{"subject": "new", "body": "filled"})

	got := m.Get("t1")
	if got.Snapshot["subject"] != "new" || got.Snapshot["body"] != "filled" {
		t.Errorf("snapshot not refreshed: %v", got.Snapshot)
	}
	if got.ItemID != "d1" {
		t.Error("refresh must not change the anchored item")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager()
	m.Set("t1", ItemDraft, "d1", map[string]string{"subject": "s"})

	got := m.Get("t1")
	got.Snapshot["subject"] = "mutated"

	if m.Get("t1").Snapshot["subject"] != "s" {
		t.Error("Get must return a copy, not shared state")
	}
}

// fakeResolver implements Resolver for restore tests.
type fakeResolver struct {
	drafts   map[string]map[string]string            // draftID -> snapshot
	byOrigin map[string]string                       // threadID/messageID -> draftID
}

func (f *fakeResolver) DraftByID(draftID string) (map[string]string, bool) {
	snap, ok := f.drafts[draftID]
	return snap, ok
}

func (f *fakeResolver) DraftByMessage(threadID, messageID string) (string, map[string]string, bool) {
	id, ok := f.byOrigin[threadID+"/"+messageID]
	if !ok {
		return "", nil, false
	}
	return id, f.drafts[id], true
}

func TestRestoreDraftAnchor(t *testing.T) {
	m := NewManager()
	r := &fakeResolver{drafts: map[string]map[string]string{"d1": {"subject": "s"}}}

	m.Restore("t1", ItemDraft, "d1", r)

	got := m.Get("t1")
	if got == nil || got.ItemType != ItemDraft || got.ItemID != "d1" {
		t.Fatalf("restored anchor = %+v, want draft d1", got)
	}
	if got.Snapshot["subject"] != "s" {
		t.Errorf("snapshot = %v", got.Snapshot)
	}
}

func TestRestoreMessageAnchorResolvesToDraft(t *testing.T) {
	m := NewManager()
	r := &fakeResolver{
		drafts:   map[string]map[string]string{"d1": {"subject": "s"}},
		byOrigin: map[string]string{"t1/m7": "d1"},
	}

	// Reverse-lookup transitivity: a message anchor whose message spawned a
	// draft comes back as a Draft anchor pointing at that draft.
	m.Restore("t1", ItemMessage, "m7", r)

	got := m.Get("t1")
	if got == nil || got.ItemType != ItemDraft || got.ItemID != "d1" {
		t.Fatalf("restored anchor = %+v, want draft d1", got)
	}
}

func TestRestoreFailureLeavesAnchorEmpty(t *testing.T) {
	m := NewManager()
	r := &fakeResolver{}

	m.Set("t1", ItemDraft, "stale", nil)
	m.Restore("t1", ItemDraft, "stale", r)
	if m.Get("t1") != nil {
		t.Error("unresolvable draft anchor should leave the slot empty")
	}

	m.Restore("t1", ItemMessage, "m-gone", r)
	if m.Get("t1") != nil {
		t.Error("unresolvable message anchor should leave the slot empty")
	}
}

func TestRestoreExternalItems(t *testing.T) {
	m := NewManager()
	r := &fakeResolver{}

	m.Restore("t1", ItemEmail, "msg-3", r)
	got := m.Get("t1")
	if got == nil || got.ItemType != ItemEmail || got.ItemID != "msg-3" {
		t.Fatalf("restored anchor = %+v, want email msg-3", got)
	}
}
