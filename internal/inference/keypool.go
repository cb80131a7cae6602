package inference

import (
	"fmt"
	"sync"
	"time"
)

// KeyPool rotates through API credentials. Rate-limited keys are parked for a
// cooldown and skipped by Next until it expires. The pool is the only place
// credential state lives; callers receive it explicitly instead of reading
// globals.
type KeyPool struct {
	mu           sync.Mutex
	keys         []string
	limitedUntil []time.Time
	cursor       int
	now          func() time.Time
}

// NewKeyPool creates a pool from the configured keys. An empty key set is a
// configuration error.
func NewKeyPool(keys []string) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	return &KeyPool{
		keys:         keys,
		limitedUntil: make([]time.Time, len(keys)),
		now:          time.Now,
	}, nil
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	return len(p.keys)
}

// Next returns the index and value of the next usable key, round-robin.
// When every key is cooling down it returns the current cursor anyway so the
// caller's own retry/backoff decides how long to wait.
func (p *KeyPool) Next() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if now.After(p.limitedUntil[idx]) {
			p.cursor = (idx + 1) % len(p.keys)
			return idx, p.keys[idx]
		}
	}

	idx := p.cursor
	p.cursor = (idx + 1) % len(p.keys)
	return idx, p.keys[idx]
}

// MarkLimited parks a key until the cooldown elapses.
func (p *KeyPool) MarkLimited(idx int, cooldown time.Duration) {
	if idx < 0 || idx >= len(p.keys) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limitedUntil[idx] = p.now().Add(cooldown)
}
