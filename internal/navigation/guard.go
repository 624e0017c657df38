package navigation

import "sync/atomic"

// Guard is a single-slot latch. The first TryAcquire wins; every later call
// returns false for the life of the guard.
type Guard struct {
	taken atomic.Bool
}

func (g *Guard) TryAcquire() bool {
	return g.taken.CompareAndSwap(false, true)
}

// Held reports whether the latch has been taken.
func (g *Guard) Held() bool {
	return g.taken.Load()
}
