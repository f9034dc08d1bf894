package tree

import (
	"fmt"
	"math"
)

// Special parent codes. Packed codes of real slots are always >= 0.
const (
	RootParent int32 = -1
	Orphan     int32 = -2
)

// Slot addresses one child slot of an internal node.
type Slot struct {
	Node    int32
	X, Y, Z int
}

func (s Slot) String() string {
	return fmt.Sprintf("%d(%d,%d,%d)", s.Node, s.X, s.Y, s.Z)
}

// Codec packs a (node, x, y, z) tuple into one integer. The code is also the flat offset of the
// slot in every per-slot buffer of the arena.
type Codec struct {
	n int32
}

func NewCodec(n int) Codec {
	if n < 2 {
		panic("branching factor must be at least 2")
	}
	return Codec{n: int32(n)}
}

func (c Codec) N() int {
	return int(c.n)
}

// MaxNodes is the largest node count whose slot codes all fit in an int32.
func (c Codec) MaxNodes() int {
	n := int64(c.n)
	return int((math.MaxInt32 + 1) / (n * n * n))
}

func (c Codec) Pack(node int32, x, y, z int) int32 {
	return ((node*c.n+int32(x))*c.n+int32(y))*c.n + int32(z)
}

func (c Codec) Unpack(code int32) (node int32, x, y, z int) {
	z = int(code % c.n)
	code /= c.n
	y = int(code % c.n)
	code /= c.n
	x = int(code % c.n)
	node = code / c.n
	return node, x, y, z
}

func (c Codec) UnpackSlot(code int32) Slot {
	node, x, y, z := c.Unpack(code)
	return Slot{Node: node, X: x, Y: y, Z: z}
}

// UnpackAll decodes a batch of codes.
func (c Codec) UnpackAll(codes []int32) []Slot {
	slots := make([]Slot, len(codes))
	for i, code := range codes {
		slots[i] = c.UnpackSlot(code)
	}
	return slots
}

// valid reports whether x, y and z are inside [0, N).
func (c Codec) valid(x, y, z int) bool {
	n := int(c.n)
	return x >= 0 && x < n && y >= 0 && y < n && z >= 0 && z < n
}
