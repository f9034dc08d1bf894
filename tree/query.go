package tree

import (
	"math"

	"mcot/utils"
)

// Leaves lists every leaf slot of every live node, in node then x, y, z order.
func (v View) Leaves() []Slot {
	n := v.codec.N()
	leaves := make([]Slot, 0, v.size*v.n3)
	for node := int32(0); int(node) < v.size; node++ {
		if v.a.parent[node] == Orphan {
			continue
		}
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				for z := 0; z < n; z++ {
					if v.Child(node, x, y, z) == 0 {
						leaves = append(leaves, Slot{Node: node, X: x, Y: y, Z: z})
					}
				}
			}
		}
	}
	return leaves
}

// MaxDepth is the depth of the deepest live leaf slot.
func (v View) MaxDepth() int {
	deepest := int32(0)
	for node := 0; node < v.size; node++ {
		if v.a.parent[node] != Orphan {
			deepest = max(deepest, v.a.depth[node])
		}
	}
	return int(deepest)
}

func (t *Tree) Leaves() []Slot {
	return t.Snapshot().Leaves()
}

func (t *Tree) NumLeaves() int {
	v := t.Snapshot()
	count := 0
	for code := 0; code < v.size*v.n3; code++ {
		if v.a.child[code] == 0 && v.a.parent[code/v.n3] != Orphan {
			count++
		}
	}
	return count
}

func (t *Tree) MaxDepth() int {
	return t.Snapshot().MaxDepth()
}

// Query returns the leaf slot containing the world point p. Points outside the bounds are clamped
// onto the boundary.
func (t *Tree) Query(p [3]float64) Slot {
	v := t.Snapshot()
	n := float64(t.N())
	var u [3]float64
	for i := range u {
		u[i] = (p[i]-t.center[i])/(2*t.radius[i]) + 0.5
		u[i] = utils.Clamp(u[i], 0, math.Nextafter(1, 0))
	}

	node := int32(0)
	for {
		var idx [3]int
		for i := range u {
			f := math.Floor(u[i] * n)
			idx[i] = min(int(f), t.N()-1)
			u[i] = u[i]*n - float64(idx[i])
		}
		off := v.Child(node, idx[0], idx[1], idx[2])
		if off == 0 {
			return Slot{Node: node, X: idx[0], Y: idx[1], Z: idx[2]}
		}
		node += off
	}
}

// Stats summarises the tree shape for reporting.
type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Live     int    `json:"live"`
	Leaves   int    `json:"leaves"`
	MaxDepth int    `json:"max_depth"`
	Tier     string `json:"tier"`
	Locked   bool   `json:"locked"`
}

func (t *Tree) Stats() Stats {
	v := t.Snapshot()
	live := 0
	for node := int32(0); int(node) < v.size; node++ {
		if v.Live(node) {
			live++
		}
	}
	return Stats{
		Size:     v.size,
		Capacity: v.a.cap,
		Live:     live,
		Leaves:   t.NumLeaves(),
		MaxDepth: v.MaxDepth(),
		Tier:     t.ResidentTier().Name(),
		Locked:   t.Locked(),
	}
}

// SlotBounds returns the world-space center and half extent of the cell covered by a slot.
func (t *Tree) SlotBounds(s Slot) (center, half [3]float64) {
	t.checkSlot(s.Node, s.X, s.Y, s.Z)
	v := t.Snapshot()

	path := []Slot{s}
	for code := v.ParentCode(s.Node); code >= 0; {
		parent := t.codec.UnpackSlot(code)
		path = append(path, parent)
		code = v.ParentCode(parent.Node)
	}

	n := float64(t.N())
	var lo [3]float64
	size := 1.0
	for i := len(path) - 1; i >= 0; i-- {
		size /= n
		lo[0] += float64(path[i].X) * size
		lo[1] += float64(path[i].Y) * size
		lo[2] += float64(path[i].Z) * size
	}
	for i := range center {
		half[i] = size * t.radius[i]
		center[i] = t.center[i] + (lo[i]+size/2-0.5)*2*t.radius[i]
	}
	return center, half
}
