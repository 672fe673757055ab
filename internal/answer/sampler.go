package answer

import (
	"math/rand/v2"
	"sync"
)

// Sampler picks distinct follow-up prompts from a fixed pool.
type Sampler struct {
	pool []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a Sampler over pool. A nil rng uses a randomly seeded
// generator.
func NewSampler(pool []string, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := make([]string, len(pool))
	copy(p, pool)
	return &Sampler{pool: p, rng: rng}
}

// Sample returns min(k, len(pool)) distinct pool entries in random order.
func (s *Sampler) Sample(k int) []string {
	if k <= 0 {
		return []string{}
	}
	k = min(k, len(s.pool))

	out := make([]string, len(s.pool))
	copy(out, s.pool)

	s.mu.Lock()
	// Partial Fisher-Yates: only the first k positions are needed.
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	s.mu.Unlock()

	return out[:k]
}
