package tree

import (
	"github.com/rs/zerolog/log"
)

// Compact drops orphaned nodes from the arena, renumbering the live ones in their current order.
// Parent codes and child offsets are rewritten and the result is published as a new generation.
func (t *Tree) Compact() (removed int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Locked() {
		return 0, ErrStructureLocked
	}

	old := t.arena.Load()
	size := int(t.size.Load())
	remap := make([]int32, size)
	live := int32(0)
	for node := 0; node < size; node++ {
		if old.parent[node] == Orphan {
			remap[node] = Orphan
			continue
		}
		remap[node] = live
		live++
	}
	if int(live) == size {
		return 0, nil
	}

	next := newArena(old.cap, t.n3, t.dataDim)
	for node := 0; node < size; node++ {
		dst := remap[node]
		if dst == Orphan {
			continue
		}
		old.moveNode(next, node, int(dst), t.n3, t.dataDim)

		if code := next.parent[dst]; code >= 0 {
			p, x, y, z := t.codec.Unpack(code)
			next.parent[dst] = t.codec.Pack(remap[p], x, y, z)
		}
		for slot := int(dst) * t.n3; slot < int(dst+1)*t.n3; slot++ {
			if off := next.child[slot]; off != 0 {
				next.child[slot] = remap[int32(node)+off] - dst
			}
		}
	}

	t.arena.Store(next)
	t.size.Store(live)
	removed = size - int(live)
	log.Debug().Msgf("compacted tree from %d to %d nodes", size, live)
	return removed, nil
}
