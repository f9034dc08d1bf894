package volume

import (
	"context"
	"math"
	"testing"

	"mcot/engine"
	"mcot/searcher"
	"mcot/tree"

	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	t.Run("sphere is dense inside and empty outside", func(t *testing.T) {
		f := Sphere([3]float64{0.5, 0.5, 0.5}, 0.3, 0.01)
		require.InDelta(t, 1, f([3]float64{0.5, 0.5, 0.5}), 1e-9)
		require.InDelta(t, 0, f([3]float64{0, 0, 0}), 1e-9)
		require.InDelta(t, 0.5, f([3]float64{0.8, 0.5, 0.5}), 1e-9, "Density should be half on the surface")
	})

	t.Run("shell peaks on its radius", func(t *testing.T) {
		f := Shell([3]float64{0, 0, 0}, 1, 0.1)
		require.InDelta(t, 1, f([3]float64{1, 0, 0}), 1e-9)
		require.Less(t, f([3]float64{0, 0, 0}), 1e-9)
	})

	t.Run("sum adds densities", func(t *testing.T) {
		one := func(p [3]float64) float64 { return 1 }
		require.Equal(t, 3.0, Sum(one, one, one)([3]float64{}))
	})

	t.Run("named fields", func(t *testing.T) {
		for _, name := range []string{"", FieldSphere, FieldShell, FieldPair} {
			f, err := NewField(name)
			require.NoError(t, err)
			require.False(t, math.IsNaN(f([3]float64{0.5, 0.5, 0.5})))
		}
		_, err := NewField("cube")
		require.Error(t, err)
	})
}

func newTree(t *testing.T, options ...tree.Option) *tree.Tree {
	options = append([]tree.Option{tree.WithBounds([3]float64{0.5, 0.5, 0.5}, [3]float64{0.5, 0.5, 0.5})}, options...)
	tr, err := tree.New(options...)
	require.NoError(t, err)
	return tr
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("rewards are a distribution over leaves", func(t *testing.T) {
		tr := newTree(t, tree.WithInitRefine(1))
		field, err := NewField(FieldSphere)
		require.NoError(t, err)
		e := NewEvaluator(field, WithSeed(7), WithWorkers(3))

		evaluation, err := e.Evaluate(ctx, tr)

		require.NoError(t, err)
		require.Len(t, evaluation.Rewards, tr.Size()*tr.SlotsPerNode())
		sum := 0.0
		for _, l := range tr.Leaves() {
			r := evaluation.Rewards[tr.Codec().Pack(l.Node, l.X, l.Y, l.Z)]
			require.GreaterOrEqual(t, r, 0.0)
			sum += r
		}
		require.InDelta(t, 1, sum, 1e-9)
		require.GreaterOrEqual(t, evaluation.TrainLoss, 0.0)
		require.GreaterOrEqual(t, evaluation.ValidationLoss, 0.0)
	})

	t.Run("repeated passes fit a constant field", func(t *testing.T) {
		tr := newTree(t)
		e := NewEvaluator(func(p [3]float64) float64 { return 1 }, WithLearningRate(0.25))

		first, err := e.Evaluate(ctx, tr)
		require.NoError(t, err)
		var last engine.Evaluation
		for i := 0; i < 20; i++ {
			last, err = e.Evaluate(ctx, tr)
			require.NoError(t, err)
		}

		require.Less(t, last.TrainLoss, first.TrainLoss)
		require.InDelta(t, 1, tr.Payload(0, 1, 1, 1)[tr.DataDim()-1], 1e-3)
		for _, g := range tr.Grad() {
			require.Zero(t, g, "Gradients should be cleared after each pass")
		}
	})

	t.Run("same seed gives the same rewards", func(t *testing.T) {
		field, err := NewField(FieldPair)
		require.NoError(t, err)
		a, err := NewEvaluator(field, WithSeed(3), WithWorkers(2)).Evaluate(ctx, newTree(t, tree.WithInitRefine(1)))
		require.NoError(t, err)
		b, err := NewEvaluator(field, WithSeed(3), WithWorkers(2)).Evaluate(ctx, newTree(t, tree.WithInitRefine(1)))
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		e := NewEvaluator(func(p [3]float64) float64 { return 0 })

		_, err := e.Evaluate(cancelled, newTree(t))
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("panics without a field", func(t *testing.T) {
		require.Panics(t, func() { NewEvaluator(nil) })
	})
}

func TestEngine(t *testing.T) {
	t.Run("runs rounds against a density field", func(t *testing.T) {
		tr := newTree(t, tree.WithInitRefine(1), tree.WithDepthLimit(6))
		field, err := NewField(FieldSphere)
		require.NoError(t, err)
		e := engine.New(tr, NewEvaluator(field, WithSeed(11)),
			engine.WithRounds(4),
			engine.WithSamplingRate(searcher.Constant(0.1)),
			engine.WithStability(2, searcher.Constant(1e-3), 3),
		)

		result, err := e.Run(context.Background())

		require.NoError(t, err)
		require.Equal(t, 4, result.Rounds)
		require.Greater(t, tr.Size(), 9)
		require.Greater(t, tr.MaxDepth(), 1)
		for _, m := range result.RoundMetrics {
			require.Positive(t, m.Refined)
			require.LessOrEqual(t, m.Passes, 3)
		}
	})
}
