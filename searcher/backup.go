package searcher

import (
	"fmt"
	"math"
	"sort"

	"mcot/tree"

	"github.com/rs/zerolog/log"
)

// Totals are the cumulative reward and visits of every slot: the slot itself plus everything
// beneath it. Both are laid out like the ledger.
type Totals struct {
	Reward []float64
	Visits []float64
}

// Backprop integrates the instant rewards and visit counts bottom-up and stores the result in the
// tree. NaN rewards are replaced with zero; their number is returned.
func Backprop(t *tree.Tree) (Totals, int) {
	view := t.Snapshot()
	instant := t.InstantRewards()
	counts := t.VisitCounts()

	nans := 0
	totals := Totals{Reward: instant, Visits: make([]float64, len(counts))}
	for i, r := range instant {
		if math.IsNaN(r) {
			totals.Reward[i] = 0
			nans++
		}
		totals.Visits[i] = float64(counts[i])
	}
	if nans > 0 {
		log.Warn().Msgf("replaced %d NaN rewards with 0", nans)
	}

	accumulate(view, t.SlotsPerNode(), depthOrder(view), totals)
	if err := t.SetTotals(totals.Reward, totals.Visits); err != nil {
		panic(fmt.Sprintf("tree changed during backprop: %v", err))
	}
	return totals, nans
}

// depthOrder lists live nodes deepest first, by index within a depth.
func depthOrder(v tree.View) []int32 {
	order := make([]int32, 0, v.Size())
	for node := int32(0); int(node) < v.Size(); node++ {
		if v.Live(node) {
			order = append(order, node)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return v.Depth(order[i]) > v.Depth(order[j])
	})
	return order
}

// accumulate adds each node's slot sums into its parent slot, visiting nodes in order. Any order
// with children before parents gives the same totals.
func accumulate(v tree.View, n3 int, order []int32, totals Totals) {
	for _, node := range order {
		parent := v.ParentCode(node)
		if parent < 0 { // root or orphan
			continue
		}
		first := int(node) * n3
		reward, visits := 0.0, 0.0
		for slot := first; slot < first+n3; slot++ {
			reward += totals.Reward[slot]
			visits += totals.Visits[slot]
		}
		totals.Reward[parent] += reward
		totals.Visits[parent] += visits
	}
}
