package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("fresh tree is one root with initial payload", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)

		require.Equal(t, 1, tree.Size())
		require.Equal(t, RootParent, tree.ParentCode(0))
		require.Equal(t, 8, tree.NumLeaves(), "Root should hold N^3 leaves")
		require.Equal(t, []float32{0.01, 0.01, 0.01, 0.01}, tree.Payload(0, 1, 1, 1))
	})

	t.Run("initial refine reserves and splits every leaf", func(t *testing.T) {
		tree, err := New(WithInitRefine(1))
		require.NoError(t, err)

		require.Equal(t, 9, tree.Size(), "Should hold the root and one node per root slot")
		require.Equal(t, 64, tree.NumLeaves())
		require.Equal(t, 1, tree.MaxDepth())
		require.GreaterOrEqual(t, tree.Capacity(), 9, "Reserve should cover the initial refine")
	})

	t.Run("initial refine stops at the depth limit", func(t *testing.T) {
		tree, err := New(WithInitRefine(3), WithDepthLimit(1))
		require.NoError(t, err)

		require.Equal(t, 9, tree.Size())
		require.Equal(t, 1, tree.MaxDepth())
	})

	t.Run("panics on invalid options", func(t *testing.T) {
		require.Panics(t, func() { _, _ = New(WithBranching(1)) })
		require.Panics(t, func() { _, _ = New(WithGrowthFactor(1.0)) })
		require.Panics(t, func() { _, _ = New(WithDataDim(0)) })
		require.Panics(t, func() { _, _ = New(WithBranching(16), WithMaxNodes(600_000)) },
			"Should panic when slot codes would overflow int32")
		require.NotPanics(t, func() { _, _ = New(WithBranching(16), WithMaxNodes(NewCodec(16).MaxNodes())) })
	})
}

func TestRefineAt(t *testing.T) {
	t.Run("links the new node to its parent slot", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)

		r, err := tree.RefineAt(0, 1, 0, 1)
		require.NoError(t, err)

		require.True(t, r.Refined)
		require.Equal(t, int32(1), r.Node)
		require.Equal(t, int32(1), tree.Child(0, 1, 0, 1), "Child offset should be relative")
		parent, ok := tree.Parent(1)
		require.True(t, ok)
		require.Equal(t, Slot{0, 1, 0, 1}, parent)
		require.Equal(t, 1, tree.Depth(1))
		require.Equal(t, []float32{0.01, 0.01, 0.01, 0.01}, tree.Payload(1, 0, 0, 0))
		require.Equal(t, int32(0), tree.Visits(1, 0, 0, 0), "New ledger row should be zero")
	})

	t.Run("refining root then its child yields three nodes", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)

		r, err := tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)
		_, err = tree.RefineAt(r.Node, 0, 0, 0)
		require.NoError(t, err)

		require.Equal(t, 3, tree.Size())
		require.Equal(t, 2, tree.Depth(2))
	})

	t.Run("depth limit is reported without error", func(t *testing.T) {
		tree, err := New(WithDepthLimit(1))
		require.NoError(t, err)
		r, err := tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)

		r, err = tree.RefineAt(r.Node, 0, 0, 0)
		require.NoError(t, err)
		require.False(t, r.Refined, "Should not refine beyond the depth limit")
		require.Equal(t, 2, tree.Size())
	})

	t.Run("refining twice fails", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		_, err = tree.RefineAt(0, 0, 1, 0)
		require.NoError(t, err)

		_, err = tree.RefineAt(0, 0, 1, 0)
		require.ErrorIs(t, err, ErrDoubleRefine)
	})

	t.Run("panics on invalid coordinates", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)

		require.Panics(t, func() { _, _ = tree.RefineAt(0, 2, 0, 0) }, "Should panic when x >= N")
		require.Panics(t, func() { _, _ = tree.RefineAt(0, 0, -1, 0) })
		require.Panics(t, func() { _, _ = tree.RefineAt(5, 0, 0, 0) }, "Should panic on unallocated node")
	})

	t.Run("fails while the structure is locked", func(t *testing.T) {
		tree, err := New()
		require.NoError(t, err)
		unlock := tree.LockStructure()

		_, err = tree.RefineAt(0, 0, 0, 0)
		require.ErrorIs(t, err, ErrStructureLocked)

		unlock()
		unlock() // idempotent
		require.False(t, tree.Locked())
		_, err = tree.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)
	})

	t.Run("depth grows by one per refinement", func(t *testing.T) {
		tree, err := New(WithBranching(3), WithDepthLimit(6))
		require.NoError(t, err)

		node := int32(0)
		for i := 0; i < 6; i++ {
			r, err := tree.RefineAt(node, i%3, (i+1)%3, (i+2)%3)
			require.NoError(t, err)
			require.True(t, r.Refined)
			parent, ok := tree.Parent(r.Node)
			require.True(t, ok)
			require.Equal(t, tree.Depth(parent.Node)+1, tree.Depth(r.Node),
				"Child depth should be parent depth + 1")
			node = r.Node
		}
		require.Equal(t, 6, tree.MaxDepth())
	})
}
