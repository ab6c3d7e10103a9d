package transcript

import (
	"fmt"
	"sync"
	"time"
)

// ErrBrokenChain is returned by Verify when a stored turn does not match its
// hash or does not link to its predecessor.
type ErrBrokenChain struct {
	Index int
}

func (e ErrBrokenChain) Error() string {
	return fmt.Sprintf("transcript chain broken at turn %d", e.Index)
}

// Transcript is an ordered, append-only sequence of turns. It is safe for
// concurrent use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{now: time.Now}
}

// Append validates turn, links it to the current tail and stores a private
// copy. The stored turn, with Hash, ParentHash and CreatedAt filled in, is
// returned.
func (t *Transcript) Append(turn Turn) (Turn, error) {
	if err := turn.Validate(); err != nil {
		return Turn{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stored := turn.clone()
	stored.ParentHash = nil
	if n := len(t.turns); n > 0 {
		parent := t.turns[n-1].Hash
		stored.ParentHash = &parent
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = t.now()
	}
	stored.Hash = stored.computeHash()

	t.turns = append(t.turns, stored)
	return stored.clone(), nil
}

// All returns every turn in insertion order.
func (t *Transcript) All() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = turn.clone()
	}
	return out
}

// Get returns the turn at index i.
func (t *Transcript) Get(i int) (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i < 0 || i >= len(t.turns) {
		return Turn{}, false
	}
	return t.turns[i].clone(), true
}

// Last returns the most recently appended turn.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1].clone(), true
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Verify recomputes every hash and parent link.
func (t *Transcript) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var prev string
	for i, turn := range t.turns {
		if i == 0 && turn.ParentHash != nil {
			return ErrBrokenChain{Index: i}
		}
		if i > 0 && (turn.ParentHash == nil || *turn.ParentHash != prev) {
			return ErrBrokenChain{Index: i}
		}
		if turn.computeHash() != turn.Hash {
			return ErrBrokenChain{Index: i}
		}
		prev = turn.Hash
	}
	return nil
}
