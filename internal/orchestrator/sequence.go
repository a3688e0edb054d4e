package orchestrator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sequencer hands out per-process monotonic sequence markers for transcript
// events. ULIDs sort lexicographically by issue time, so an external reader
// ordering events by Seq reconstructs submission order without a counter
// column.
type Sequencer struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewSequencer() *Sequencer {
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Sequencer{entropy: ulid.Monotonic(source, 0)}
}

// Next returns the next marker. Safe for concurrent use.
func (s *Sequencer) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
