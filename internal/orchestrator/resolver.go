package orchestrator

import (
	"valet/internal/anchor"
	"valet/internal/draft"
)

// engineResolver adapts the draft engine to anchor restoration. Terminal
// drafts resolve as missing so a stale anchor clears instead of reviving a
// sent or discarded draft.
type engineResolver struct {
	engine *draft.Engine
}

var _ anchor.Resolver = engineResolver{}

func (r engineResolver) DraftByID(draftID string) (map[string]string, bool) {
	d, err := r.engine.Get(draftID)
	if err != nil || d.Terminal() {
		return nil, false
	}
	return d.Snapshot(), true
}

func (r engineResolver) DraftByMessage(threadID, messageID string) (string, map[string]string, bool) {
	d := r.engine.ByOriginMessage(threadID, messageID)
	if d == nil || d.Terminal() {
		return "", nil, false
	}
	return d.ID, d.Snapshot(), true
}
