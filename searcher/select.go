package searcher

import (
	"fmt"

	"mcot/tree"
)

// Path is the sequence of slots visited by one selection, ending at a leaf.
type Path []tree.Slot

func (p Path) Leaf() tree.Slot {
	return p[len(p)-1]
}

// Select descends from the root along the best scoring slot of each node until it reaches a leaf,
// recording a visit on every slot it passes. Ties go to the first slot in x, y, z order.
func Select(t *tree.Tree, policy Policy) Path {
	path := descend(t.Snapshot(), policy, t.DepthLimit(), nil)
	if path == nil {
		panic("root has no selectable slot")
	}
	for _, slot := range path {
		t.RecordVisit(slot.Node, slot.X, slot.Y, slot.Z)
	}
	return path
}

// SelectMany picks up to k distinct leaves. Each pass descends like Select but skips leaves that
// were already picked and subtrees with nothing left to pick.
func SelectMany(t *tree.Tree, policy Policy, k int) []tree.Slot {
	view := t.Snapshot()
	codec := t.Codec()
	exhausted := make(map[int32]bool)
	leaves := make([]tree.Slot, 0, k)

	for len(leaves) < k {
		path := descend(view, policy, t.DepthLimit(), exhausted)
		if path == nil {
			break // every leaf picked
		}
		last := path.Leaf()
		exhausted[codec.Pack(last.Node, last.X, last.Y, last.Z)] = true
		if view.Child(last.Node, last.X, last.Y, last.Z) != 0 {
			continue // dead end, retry above it
		}
		for _, slot := range path {
			t.RecordVisit(slot.Node, slot.X, slot.Y, slot.Z)
		}
		leaves = append(leaves, last)
	}
	return leaves
}

// descend returns the greedy path from the root. When a node has no slot left outside exhausted,
// the path ends at the internal slot leading to it. A nil path means the root itself is exhausted.
func descend(v tree.View, policy Policy, depthLimit int, exhausted map[int32]bool) Path {
	n := v.Codec().N()
	codec := v.Codec()
	path := make(Path, 0, depthLimit+1)
	node := int32(0)
	for step := 0; ; step++ {
		if step > depthLimit {
			panic(fmt.Sprintf("selection exceeded %d steps at node %d", depthLimit+1, node))
		}

		found := false
		var best tree.Slot
		var bestScore Score
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				for z := 0; z < n; z++ {
					if exhausted[codec.Pack(node, x, y, z)] {
						continue
					}
					reward, visits := v.Total(node, x, y, z)
					score := policy.Score(reward, visits)
					if !found || bestScore.Less(score) {
						found = true
						best = tree.Slot{Node: node, X: x, Y: y, Z: z}
						bestScore = score
					}
				}
			}
		}
		if !found {
			if len(path) == 0 {
				return nil
			}
			return path
		}

		path = append(path, best)
		off := v.Child(best.Node, best.X, best.Y, best.Z)
		if off == 0 {
			return path
		}
		node += off
	}
}
