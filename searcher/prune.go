package searcher

import (
	"fmt"
	"math"

	"mcot/tree"

	"github.com/rs/zerolog/log"
)

// Leaf signals a prune threshold can be computed over.
const (
	SignalWeight  = "weight"
	SignalDensity = "density"
	SignalVisits  = "visits"
)

// LeafSignal reads one value per leaf. Density is the last payload channel through a shifted
// softplus. NaNs read as zero.
func LeafSignal(t *tree.Tree, leaves []tree.Slot, signal string) ([]float64, error) {
	view := t.Snapshot()
	values := make([]float64, len(leaves))
	for i, l := range leaves {
		var v float64
		switch signal {
		case SignalWeight:
			v = view.InstantReward(l.Node, l.X, l.Y, l.Z)
		case SignalDensity:
			payload := view.Payload(l.Node, l.X, l.Y, l.Z)
			v = softplus(float64(payload[len(payload)-1]) - 1)
		case SignalVisits:
			_, v = view.Total(l.Node, l.X, l.Y, l.Z)
		default:
			return nil, fmt.Errorf("unknown signal %q", signal)
		}
		if math.IsNaN(v) {
			v = 0
		}
		values[i] = v
	}
	return values, nil
}

func softplus(x float64) float64 {
	if x > 20 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

type PruneResult struct {
	Rounds   int
	Merged   int
	Orphaned int
}

// Prune repeatedly merges frontier nodes, internal nodes whose slots are all leaves with values
// below threshold. A merged node's parent slot joins the leaf set with the mean of the node's
// values, so pruning can cascade upwards until no frontier node is left.
func Prune(t *tree.Tree, leaves []tree.Slot, values []float64, threshold float64) (PruneResult, error) {
	if len(leaves) != len(values) {
		panic("one value per leaf is required")
	}
	n3 := t.SlotsPerNode()
	result := PruneResult{}

	for {
		view := t.Snapshot()
		below := make(map[int32]int)
		sums := make(map[int32]float64)
		for i, l := range leaves {
			if values[i] < threshold {
				below[l.Node]++
			}
			sums[l.Node] += values[i]
		}

		var frontier []int32
		for node := int32(1); int(node) < view.Size(); node++ {
			if below[node] == n3 && view.Live(node) {
				frontier = append(frontier, node)
			}
		}
		if len(frontier) == 0 {
			break
		}

		parents := make([]tree.Slot, len(frontier))
		for i, node := range frontier {
			parents[i] = view.Codec().UnpackSlot(view.ParentCode(node))
		}

		merged, err := t.Merge(frontier)
		if err != nil {
			return result, fmt.Errorf("prune round %d: %w", result.Rounds+1, err)
		}
		result.Rounds++
		result.Merged += merged.Merged
		result.Orphaned += merged.Orphaned
		log.Debug().Msgf("prune round %d merged %d of %d leaves", result.Rounds, len(frontier)*n3, len(leaves))

		gone := make(map[int32]bool, len(frontier))
		for _, node := range frontier {
			gone[node] = true
		}
		nextLeaves := make([]tree.Slot, 0, len(leaves))
		nextValues := make([]float64, 0, len(values))
		for i, l := range leaves {
			if !gone[l.Node] {
				nextLeaves = append(nextLeaves, l)
				nextValues = append(nextValues, values[i])
			}
		}
		for i, node := range frontier {
			nextLeaves = append(nextLeaves, parents[i])
			nextValues = append(nextValues, sums[node]/float64(n3))
		}
		leaves, values = nextLeaves, nextValues
	}
	return result, nil
}
