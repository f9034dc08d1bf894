package tree

import (
	"fmt"
	"sync/atomic"
)

// RecordVisit increments the visit counter of one slot. It is the only ledger write performed
// during selection and is safe against concurrent readers.
func (t *Tree) RecordVisit(node int32, x, y, z int) {
	t.checkSlot(node, x, y, z)
	atomic.AddInt32(&t.arena.Load().visits[t.codec.Pack(node, x, y, z)], 1)
}

func (t *Tree) Visits(node int32, x, y, z int) int32 {
	t.checkSlot(node, x, y, z)
	return t.Snapshot().Visits(node, x, y, z)
}

// VisitCounts copies the raw visit counters of every allocated slot.
func (t *Tree) VisitCounts() []int32 {
	a, size := t.generation()
	out := make([]int32, size*t.n3)
	for i := range out {
		out[i] = atomic.LoadInt32(&a.visits[i])
	}
	return out
}

// SetInstantRewards overwrites the instantaneous reward of every allocated slot.
func (t *Tree) SetInstantRewards(rewards []float64) error {
	a, size := t.generation()
	if want := size * t.n3; len(rewards) != want {
		return fmt.Errorf("got %d rewards, want %d: %w", len(rewards), want, ErrRewardShape)
	}
	copy(a.instant, rewards)
	return nil
}

func (t *Tree) InstantRewards() []float64 {
	a, size := t.generation()
	return append([]float64(nil), a.instant[:size*t.n3]...)
}

func (t *Tree) InstantReward(node int32, x, y, z int) float64 {
	t.checkSlot(node, x, y, z)
	return t.arena.Load().instant[t.codec.Pack(node, x, y, z)]
}

// SetTotals stores the cumulative reward and visit arrays produced by backpropagation.
func (t *Tree) SetTotals(reward, visits []float64) error {
	a, size := t.generation()
	want := size * t.n3
	if len(reward) != want || len(visits) != want {
		return fmt.Errorf("got %d/%d totals, want %d: %w", len(reward), len(visits), want, ErrRewardShape)
	}
	copy(a.reward, reward)
	copy(a.total, visits)
	return nil
}

// Totals copies the cumulative reward and visit arrays.
func (t *Tree) Totals() (reward, visits []float64) {
	a, size := t.generation()
	n := size * t.n3
	return append([]float64(nil), a.reward[:n]...), append([]float64(nil), a.total[:n]...)
}

// Total returns the cumulative reward and visits of one slot.
func (t *Tree) Total(node int32, x, y, z int) (reward, visits float64) {
	t.checkSlot(node, x, y, z)
	a := t.arena.Load()
	code := t.codec.Pack(node, x, y, z)
	return a.reward[code], a.total[code]
}

// ResetLedger zeroes visit counters, rewards and totals.
func (t *Tree) ResetLedger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.arena.Load()
	for i := range a.visits {
		atomic.StoreInt32(&a.visits[i], 0)
	}
	clear(a.instant)
	clear(a.reward)
	clear(a.total)
}
