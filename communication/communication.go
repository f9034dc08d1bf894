package communication

import (
	"mcot/experiments/metrics"
	"mcot/tree"
)

// Reporter receives the progress of a running search.
type Reporter interface {
	UpdateTree(t *tree.Tree)
	UpdateRound(m metrics.RoundMetric)
}
