package checkpoint

import (
	"context"
	"testing"

	"mcot/tree"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	s, err := Open(Config{InMemory: true, Quiet: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func newTree(t *testing.T, options ...tree.Option) *tree.Tree {
	tr, err := tree.New(options...)
	require.NoError(t, err)
	return tr
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("saved trees load back unchanged", func(t *testing.T) {
		s := openStore(t)
		run := uuid.NewString()
		tr := newTree(t, tree.WithInitRefine(1))

		require.NoError(t, s.Save(ctx, run, 1, tr))
		loaded, err := s.Load(run, 1)

		require.NoError(t, err)
		require.Equal(t, tr.Record(), loaded.Record())
	})

	t.Run("latest returns the deepest checkpoint", func(t *testing.T) {
		s := openStore(t)
		run := uuid.NewString()
		tr := newTree(t)
		require.NoError(t, s.Save(ctx, run, 2, tr))
		_, err := tr.RefineAt(0, 0, 0, 0)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, run, 10, tr))

		loaded, depth, err := s.Latest(run)

		require.NoError(t, err)
		require.Equal(t, 10, depth, "Depth 10 should sort after depth 2")
		require.Equal(t, 2, loaded.Size())
	})

	t.Run("lists checkpoints per run", func(t *testing.T) {
		s := openStore(t)
		first, second := uuid.NewString(), uuid.NewString()
		tr := newTree(t)
		for _, depth := range []int{3, 1, 2} {
			require.NoError(t, s.Save(ctx, first, depth, tr))
		}
		require.NoError(t, s.Save(ctx, second, 1, tr))

		entries, err := s.List(first)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			require.Equal(t, first, e.RunID)
			require.Equal(t, i+1, e.Depth)
			require.Positive(t, e.Bytes)
		}

		runs, err := s.Runs()
		require.NoError(t, err)
		require.ElementsMatch(t, []string{first, second}, runs)
	})

	t.Run("missing checkpoints are not found", func(t *testing.T) {
		s := openStore(t)
		run := uuid.NewString()

		_, err := s.Load(run, 1)
		require.ErrorIs(t, err, ErrNotFound)
		_, _, err = s.Latest(run)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects malformed run ids", func(t *testing.T) {
		s := openStore(t)
		require.Error(t, s.Save(ctx, "../escape", 1, newTree(t)))
		_, err := s.List("nope")
		require.Error(t, err)
	})

	t.Run("does not write after cancellation", func(t *testing.T) {
		s := openStore(t)
		run := uuid.NewString()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, s.Save(cancelled, run, 1, newTree(t)), context.Canceled)
		entries, err := s.List(run)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("persists across reopening", func(t *testing.T) {
		dir := t.TempDir()
		run := uuid.NewString()
		s, err := Open(Config{Dir: dir, SyncWrites: true, Quiet: true})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, run, 1, newTree(t, tree.WithInitRefine(1))))
		require.NoError(t, s.Close())

		s, err = Open(Config{Dir: dir, Quiet: true})
		require.NoError(t, err)
		defer s.Close()
		loaded, err := s.Load(run, 1)
		require.NoError(t, err)
		require.Equal(t, 9, loaded.Size())
	})
}
