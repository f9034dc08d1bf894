package searcher

import (
	"testing"

	"mcot/tree"

	"github.com/stretchr/testify/require"
)

func TestPrune(t *testing.T) {
	t.Run("merges nodes whose leaves are all below threshold", func(t *testing.T) {
		tr, err := tree.New(tree.WithInitRefine(1))
		require.NoError(t, err)
		rewards := make([]float64, tr.Size()*8)
		for i := range rewards {
			rewards[i] = 1
		}
		for i := 3 * 8; i < 4*8; i++ {
			rewards[i] = 0.1 // node 3
		}
		rewards[5*8] = 0.1 // one slot of node 5 only
		require.NoError(t, tr.SetInstantRewards(rewards))
		leaves := tr.Leaves()
		values, err := LeafSignal(tr, leaves, SignalWeight)
		require.NoError(t, err)

		result, err := Prune(tr, leaves, values, 0.5)

		require.NoError(t, err)
		require.Equal(t, PruneResult{Rounds: 1, Merged: 1, Orphaned: 1}, result)
		require.Equal(t, tree.Orphan, tr.ParentCode(3))
		require.True(t, tr.Snapshot().Live(5))
		require.Equal(t, 57, tr.NumLeaves())
	})

	t.Run("cascades towards the root", func(t *testing.T) {
		tr, err := tree.New(tree.WithInitRefine(2))
		require.NoError(t, err)
		require.NoError(t, tr.SetInstantRewards(make([]float64, tr.Size()*8)))
		leaves := tr.Leaves()
		values, err := LeafSignal(tr, leaves, SignalWeight)
		require.NoError(t, err)

		result, err := Prune(tr, leaves, values, 0.5)

		require.NoError(t, err)
		require.Equal(t, 2, result.Rounds)
		require.Equal(t, 72, result.Merged)
		require.Equal(t, 8, tr.NumLeaves(), "Only the root slots should remain")
		require.Equal(t, 0, tr.MaxDepth())
	})

	t.Run("density signal", func(t *testing.T) {
		tr, err := tree.New(tree.WithInitValue(1))
		require.NoError(t, err)
		leaves := tr.Leaves()

		values, err := LeafSignal(tr, leaves, SignalDensity)
		require.NoError(t, err)
		require.InDelta(t, 0.6931, values[0], 1e-4, "softplus(1-1) is ln 2")

		_, err = LeafSignal(tr, leaves, "sigma")
		require.Error(t, err)
	})
}
