// Package gate implements single-slot admission for frame evaluation.
package gate

import "sync/atomic"

// Gate admits at most one frame evaluation at a time. A frame that arrives
// while an evaluation is in flight is dropped, never queued.
type Gate struct {
	busy atomic.Bool
}

// TryEnter moves the gate from idle to busy. It returns false when the gate
// was already busy, in which case the caller must drop its frame.
func (g *Gate) TryEnter() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Leave returns the gate to idle. Callers defer it right after a successful TryEnter.
func (g *Gate) Leave() {
	g.busy.Store(false)
}

// Busy reports whether an evaluation currently holds the gate.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
