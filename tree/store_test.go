package tree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Bytes of payload and gradient per node with N=2 and four channels.
const nodeBytes = 8 * 4 * 4 * 2

func TestAllocate(t *testing.T) {
	t.Run("growth preserves existing rows", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		r, err := tree.RefineAt(0, 1, 1, 1)
		require.NoError(t, err)
		copy(tree.Payload(r.Node, 0, 1, 0), []float32{1, 2, 3, 4})
		tree.RecordVisit(r.Node, 0, 1, 0)

		base, resized, err := tree.Allocate(20)
		require.NoError(t, err)

		require.True(t, resized)
		require.Equal(t, int32(2), base)
		require.Equal(t, 22, tree.Size())
		require.Equal(t, []float32{1, 2, 3, 4}, tree.Payload(r.Node, 0, 1, 0), "Payload should survive growth")
		require.Equal(t, int32(1), tree.Visits(r.Node, 0, 1, 0), "Ledger should survive growth")
		require.Equal(t, []float32{0, 0, 0, 0}, tree.Payload(21, 1, 1, 1), "New rows should be zeroed")
	})

	t.Run("growth is proportional to capacity", func(t *testing.T) {
		tree, err := New(WithInitReserve(10), WithGrowthFactor(2))
		require.NoError(t, err)

		_, resized, err := tree.Allocate(9)
		require.NoError(t, err)
		require.False(t, resized, "Should fit the initial reserve")

		_, resized, err = tree.Allocate(1)
		require.NoError(t, err)
		require.True(t, resized)
		require.Equal(t, 20, tree.Capacity(), "Should grow by cap*(growth-1)")
	})

	t.Run("max nodes is a hard limit", func(t *testing.T) {
		tree, err := New(WithMaxNodes(2))
		require.NoError(t, err)
		_, err = tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)

		_, err = tree.RefineAt(0, 0, 0, 1)
		require.ErrorIs(t, err, ErrResourceExhausted)
		require.Equal(t, 2, tree.Size(), "Failed refine should leave the tree unchanged")
		require.Equal(t, int32(0), tree.Child(0, 0, 0, 1))
	})

	t.Run("panics on non-positive count", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		require.Panics(t, func() { _, _, _ = tree.Allocate(0) })
	})
}

func TestTiers(t *testing.T) {
	t.Run("growth is staged through the fallback tier", func(t *testing.T) {
		primary := NewMemoryTier("gpu", 3*nodeBytes)
		fallback := NewMemoryTier("host", 0)
		tree, err := New(WithTiers(primary, fallback))
		require.NoError(t, err)

		_, err = tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)
		_, err = tree.RefineAt(0, 0, 0, 1)
		require.NoError(t, err)

		require.Equal(t, 3, tree.Capacity())
		require.Equal(t, primary, tree.ResidentTier(), "Payload should return to the primary tier")
		require.Equal(t, int64(3*nodeBytes), primary.Used())
		require.Equal(t, int64(0), fallback.Used(), "Staging space should be released")
	})

	t.Run("growth fails when the final buffer cannot fit", func(t *testing.T) {
		primary := NewMemoryTier("gpu", 3*nodeBytes)
		tree, err := New(WithTiers(primary, NewMemoryTier("host", 0)))
		require.NoError(t, err)
		for z := 0; z < 2; z++ {
			_, err = tree.RefineAt(0, 0, 0, z)
			require.NoError(t, err)
		}

		_, err = tree.RefineAt(0, 0, 1, 0)
		require.ErrorIs(t, err, ErrResourceExhausted)
		require.Equal(t, 3, tree.Size())
		require.Equal(t, primary, tree.ResidentTier())
	})

	t.Run("growth fails without a fallback tier", func(t *testing.T) {
		primary := NewMemoryTier("gpu", 3*nodeBytes)
		tree, err := New(WithTiers(primary, nil))
		require.NoError(t, err)
		_, err = tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)

		_, err = tree.RefineAt(0, 0, 0, 1)
		require.ErrorIs(t, err, ErrResourceExhausted)
		require.Equal(t, int64(2*nodeBytes), primary.Used())
	})

	t.Run("initial reserve must fit the primary tier", func(t *testing.T) {
		_, err := New(WithTiers(NewMemoryTier("gpu", nodeBytes), nil), WithInitRefine(1))
		require.ErrorIs(t, err, ErrResourceExhausted)
		require.ErrorIs(t, err, ErrTierFull)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("views keep their generation across growth", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		view := tree.Snapshot()

		_, _, err = tree.Allocate(50)
		require.NoError(t, err)

		require.Equal(t, 1, view.Size())
		require.Equal(t, 1, view.Capacity(), "Old view should still read the old generation")
		require.Equal(t, 51, tree.Snapshot().Size())
	})

	t.Run("views never index past their arena", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		old := tree.arena.Load()
		_, resized, err := tree.Allocate(old.cap)
		require.NoError(t, err)
		require.True(t, resized)

		// A reader holding the previous arena while the new size is visible.
		tree.arena.Store(old)
		view := tree.Snapshot()
		require.Equal(t, old.cap, view.Size())
		require.NotPanics(t, func() { view.Leaves() })
		require.NotPanics(t, func() { tree.Stats() })
		require.Len(t, tree.PayloadBuffer(), old.cap*8*tree.DataDim())
	})

	t.Run("stats are safe while the arena grows", func(t *testing.T) {
		tree, err := New(WithGrowthFactor(1.01))
		require.NoError(t, err)
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = tree.Stats()
				}
			}
		}()
		for i := 0; i < 200; i++ {
			_, _, err := tree.Allocate(1)
			require.NoError(t, err)
		}
		close(done)
		wg.Wait()
		require.Equal(t, 201, tree.Size())
	})
}
