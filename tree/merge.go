package tree

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type MergeResult struct {
	Merged   int // nodes collapsed into their parent slot
	Orphaned int // nodes dropped, merged nodes included
}

// reduction holds the values one merged node leaves in its parent slot.
type reduction struct {
	parent  int32
	payload []float32
	instant float64
	reward  float64
	visits  int64
	total   float64
}

// Merge collapses each node back into the parent slot that points at it. The parent slot receives
// the mean payload of the node's slots, the summed rewards and max(parent, sum) visits. The node and
// its subtree are orphaned in place; Size is unchanged until Compact.
func (t *Tree) Merge(nodes []int32) (MergeResult, error) {
	for _, node := range nodes {
		t.checkNode(node)
		if node == 0 {
			panic("the root cannot be merged")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Locked() {
		return MergeResult{}, ErrStructureLocked
	}

	// All reductions read the same generation before anything is written.
	view := t.Snapshot()
	batch := make(map[int32]bool, len(nodes))
	for _, node := range nodes {
		if !view.Live(node) {
			return MergeResult{}, fmt.Errorf("merge node %d: %w", node, ErrOrphaned)
		}
		batch[node] = true
	}
	// Members below another member go with that member's subtree.
	tops := make([]int32, 0, len(batch))
	taken := make(map[int32]bool, len(batch))
	for _, node := range nodes {
		if !taken[node] && !underBatch(view, node, batch) {
			tops = append(tops, node)
		}
		taken[node] = true
	}

	reductions := make([]reduction, len(tops))
	g := errgroup.Group{}
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, node := range tops {
		g.Go(func() error {
			reductions[i] = t.reduce(view, node)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MergeResult{}, err
	}

	a := view.a
	result := MergeResult{}
	for i, node := range tops {
		r := reductions[i]
		p := r.parent
		a.child[p] = 0
		copy(a.payload[int(p)*t.dataDim:int(p+1)*t.dataDim], r.payload)
		a.instant[p] = r.instant
		a.reward[p] = r.reward
		visits := max(int64(atomic.LoadInt32(&a.visits[p])), r.visits)
		atomic.StoreInt32(&a.visits[p], int32(min(visits, math.MaxInt32)))
		a.total[p] = max(a.total[p], r.total)

		result.Orphaned += t.orphan(a, node)
		result.Merged++
	}
	log.Debug().Msgf("merged %d nodes, %d orphaned", result.Merged, result.Orphaned)
	return result, nil
}

// underBatch reports whether a proper ancestor of node is in batch.
func underBatch(v View, node int32, batch map[int32]bool) bool {
	for code := v.ParentCode(node); code >= 0; code = v.ParentCode(node) {
		node, _, _, _ = v.Codec().Unpack(code)
		if batch[node] {
			return true
		}
	}
	return false
}

func (t *Tree) reduce(v View, node int32) reduction {
	a := v.a
	r := reduction{
		parent:  a.parent[node],
		payload: make([]float32, t.dataDim),
	}
	sums := make([]float64, t.dataDim)
	first := int(node) * t.n3
	for slot := first; slot < first+t.n3; slot++ {
		for d := 0; d < t.dataDim; d++ {
			sums[d] += float64(a.payload[slot*t.dataDim+d])
		}
		r.instant += a.instant[slot]
		r.reward += a.reward[slot]
		r.visits += int64(atomic.LoadInt32(&a.visits[slot]))
		r.total += a.total[slot]
	}
	for d, sum := range sums {
		r.payload[d] = float32(sum / float64(t.n3))
	}
	return r
}

// orphan marks node and every node below it as dropped and returns how many were marked.
func (t *Tree) orphan(a *arena, node int32) int {
	count := 0
	stack := []int32{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for slot := int(n) * t.n3; slot < int(n+1)*t.n3; slot++ {
			if off := a.child[slot]; off != 0 {
				stack = append(stack, n+off)
				a.child[slot] = 0
			}
		}
		a.parent[n] = Orphan
		count++
	}
	return count
}
