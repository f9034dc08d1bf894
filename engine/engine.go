package engine

import (
	"context"

	"mcot/experiments/metrics"
	"mcot/tree"
)

// Evaluation is the outcome of one evaluation pass.
type Evaluation struct {
	// Rewards holds one instant reward per slot, laid out like the tree ledger. Only leaf slots
	// are read.
	Rewards        []float64
	TrainLoss      float64
	ValidationLoss float64
}

// Evaluator scores the leaves of a tree and may update payload and gradient buffers in place. The
// tree structure is locked while it runs.
type Evaluator interface {
	Evaluate(ctx context.Context, t *tree.Tree) (Evaluation, error)
}

// Checkpointer persists the tree whenever a run reaches a new depth.
type Checkpointer interface {
	Save(ctx context.Context, runID string, depth int, t *tree.Tree) error
}

type Result struct {
	metrics.RunMetric
	RoundMetrics []metrics.RoundMetric
}
