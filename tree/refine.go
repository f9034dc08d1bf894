package tree

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Refinement reports the outcome of RefineAt. Refined is false when the depth limit was reached.
type Refinement struct {
	Node    int32 // index of the new internal node
	Refined bool
	Resized bool
}

// RefineAt splits the leaf slot (x, y, z) of node into a new internal node with N^3 leaves.
func (t *Tree) RefineAt(node int32, x, y, z int) (Refinement, error) {
	t.checkSlot(node, x, y, z)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refineAt(node, x, y, z)
}

func (t *Tree) refineAt(node int32, x, y, z int) (Refinement, error) {
	if t.Locked() {
		return Refinement{}, ErrStructureLocked
	}

	a := t.arena.Load()
	if a.parent[node] == Orphan {
		panic(fmt.Sprintf("refining merged node %d", node))
	}
	if a.depth[node] >= t.depthLimit {
		return Refinement{}, nil
	}
	code := t.codec.Pack(node, x, y, z)
	if a.child[code] != 0 {
		return Refinement{}, fmt.Errorf("refine %v: %w", Slot{node, x, y, z}, ErrDoubleRefine)
	}

	filled, resized, err := t.allocate(1)
	if err != nil {
		return Refinement{}, err
	}

	a = t.arena.Load() // may have grown
	a.child[code] = filled - node
	a.parent[filled] = code
	a.depth[filled] = a.depth[node] + 1
	off := int(filled) * t.n3 * t.dataDim
	fill(a.payload[off:off+t.n3*t.dataDim], t.initValue)

	return Refinement{Node: filled, Refined: true, Resized: resized}, nil
}

// Refine splits every leaf below the depth limit, repeats times.
func (t *Tree) Refine(repeats int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < repeats; i++ {
		leaves := t.Snapshot().Leaves()
		refined := 0
		for _, leaf := range leaves {
			r, err := t.refineAt(leaf.Node, leaf.X, leaf.Y, leaf.Z)
			if err != nil {
				return fmt.Errorf("refine pass %d: %w", i+1, err)
			}
			if r.Refined {
				refined++
			}
		}
		log.Debug().Msgf("refine pass %d split %d of %d leaves", i+1, refined, len(leaves))
		if refined == 0 {
			break
		}
	}
	return nil
}
