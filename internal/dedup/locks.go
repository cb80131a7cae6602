package dedup

import "sync"

const lockStripes = 256

// hashLocks serializes check-then-insert sections per canonical hash. Striped
// by the hash's first byte: two concurrently processed near-identical
// candidates land on the same stripe, so neither can insert while the other
// is between its duplicate check and its index write.
type hashLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newHashLocks() *hashLocks {
	return &hashLocks{}
}

// Acquire locks the stripe owning the hash and returns its release func. The
// caller must release on every exit path.
func (l *hashLocks) Acquire(canonicalHash string) func() {
	idx := 0
	if len(canonicalHash) > 0 {
		idx = int(canonicalHash[0])
		if len(canonicalHash) > 1 {
			idx = idx*31 + int(canonicalHash[1])
		}
		idx %= lockStripes
	}

	mu := &l.stripes[idx]
	mu.Lock()
	return mu.Unlock
}
