package dispatch

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RandomSelector picks a uniformly random recipient. A fixed seed makes the
// sequence of picks reproducible.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector returns a selector seeded with seed.
func NewRandomSelector(seed uint64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeededSelector returns a selector seeded from the clock.
func NewTimeSeededSelector() *RandomSelector {
	return NewRandomSelector(uint64(time.Now().UnixNano()))
}

// Pick implements RecipientSelector. An empty pool yields "".
func (s *RandomSelector) Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return pool[s.rng.IntN(len(pool))]
}

// FirstSelector always picks the first recipient.
type FirstSelector struct{}

// Pick implements RecipientSelector.
func (FirstSelector) Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[0]
}
