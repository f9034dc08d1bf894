package tree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mcot/meta"

	"github.com/rs/zerolog/log"
)

// Tree is an N^3 spatial tree stored in flat, index-addressed buffers. Node 0 is the root; its
// slots are the depth 0 leaves covering the whole volume.
type Tree struct {
	codec       Codec
	n3          int
	dataDim     int
	depthLimit  int32
	initRefine  int
	initReserve int
	growth      float64
	maxNodes    int
	initValue   float32
	center      [3]float64
	radius      [3]float64
	primary     Tier
	fallback    Tier

	arena   atomic.Pointer[arena]
	size    atomic.Int32 // n_internal
	locks   atomic.Int32
	mu      sync.Mutex // serialises writers
	payload residency
}

type Option func(t *Tree)

func WithBranching(n int) Option {
	return func(t *Tree) {
		t.codec = Codec{n: int32(n)}
	}
}

func WithDataDim(dim int) Option {
	return func(t *Tree) {
		t.dataDim = dim
	}
}

func WithDepthLimit(limit int) Option {
	return func(t *Tree) {
		t.depthLimit = int32(limit)
	}
}

func WithInitRefine(repeats int) Option {
	return func(t *Tree) {
		if repeats > 0 {
			t.initRefine = repeats
		}
	}
}

func WithInitReserve(nodes int) Option {
	return func(t *Tree) {
		if nodes > 0 {
			t.initReserve = nodes
		}
	}
}

func WithGrowthFactor(factor float64) Option {
	return func(t *Tree) {
		t.growth = factor
	}
}

func WithMaxNodes(nodes int) Option {
	return func(t *Tree) {
		t.maxNodes = nodes
	}
}

func WithInitValue(value float32) Option {
	return func(t *Tree) {
		t.initValue = value
	}
}

// WithBounds sets the world-space box covered by the root: center +- radius on each axis.
func WithBounds(center, radius [3]float64) Option {
	return func(t *Tree) {
		t.center = center
		t.radius = radius
	}
}

// WithTiers sets the primary memory tier for the payload and an optional fallback used to stage
// large growths.
func WithTiers(primary, fallback Tier) Option {
	return func(t *Tree) {
		if primary != nil {
			t.primary = primary
		}
		t.fallback = fallback
	}
}

func New(options ...Option) (*Tree, error) {
	t := &Tree{ // Default values
		codec:       Codec{n: meta.BRANCHING},
		dataDim:     meta.DATA_DIM,
		depthLimit:  meta.DEPTH_LIMIT,
		initRefine:  meta.INIT_REFINE,
		initReserve: 1,
		growth:      meta.GROWTH_FACTOR,
		maxNodes:    meta.MAX_NODES,
		initValue:   meta.INIT_VALUE,
		center:      [3]float64{0.5, 0.5, 0.5},
		radius:      [3]float64{0.5, 0.5, 0.5},
		primary:     NewMemoryTier("primary", 0),
	}
	for _, option := range options {
		option(t)
	}
	t.validate()

	n := t.codec.N()
	t.n3 = n * n * n
	reserve := t.initReserve
	for i, leaves := 1, 1; i <= t.initRefine; i++ {
		leaves *= n
		reserve += leaves * leaves * leaves
	}
	reserve = min(reserve, t.maxNodes)

	t.payload = residency{tier: t.primary}
	if err := t.payload.resize(t.payloadBytes(reserve)); err != nil {
		return nil, fmt.Errorf("reserve %d nodes: %w: %w", reserve, ErrResourceExhausted, err)
	}

	a := newArena(reserve, t.n3, t.dataDim)
	a.parent[0] = RootParent
	fill(a.payload[:t.n3*t.dataDim], t.initValue)
	t.arena.Store(a)
	t.size.Store(1)

	if t.initRefine > 0 {
		if err := t.Refine(t.initRefine); err != nil {
			return nil, fmt.Errorf("initial refine: %w", err)
		}
	}
	return t, nil
}

func (t *Tree) validate() {
	if t.codec.N() < 2 {
		panic("N must be at least 2")
	}
	if t.depthLimit < 0 {
		panic("depth limit cannot be negative")
	}
	if t.dataDim < 1 {
		panic("data dim must be positive")
	}
	if t.growth <= 1.0 {
		panic("growth factor must be greater than 1")
	}
	if t.maxNodes < 1 {
		panic("max nodes must be positive")
	}
	if t.maxNodes > t.codec.MaxNodes() {
		panic(fmt.Sprintf("max nodes %d exceeds %d, the limit of int32 slot codes for N=%d", t.maxNodes, t.codec.MaxNodes(), t.codec.N()))
	}
	for _, r := range t.radius {
		if r <= 0 {
			panic("radius must be positive")
		}
	}
}

func (t *Tree) N() int                { return t.codec.N() }
func (t *Tree) Codec() Codec          { return t.codec }
func (t *Tree) DataDim() int          { return t.dataDim }
func (t *Tree) DepthLimit() int       { return int(t.depthLimit) }
func (t *Tree) MaxNodes() int         { return t.maxNodes }
func (t *Tree) GrowthFactor() float64 { return t.growth }
func (t *Tree) InitValue() float32    { return t.initValue }

// Bounds is the world-space box covered by the root.
func (t *Tree) Bounds() (center, radius [3]float64) { return t.center, t.radius }

// SlotsPerNode is N^3.
func (t *Tree) SlotsPerNode() int { return t.n3 }

// Size is the number of allocated nodes (n_internal), orphaned nodes included.
func (t *Tree) Size() int { return int(t.size.Load()) }

func (t *Tree) Capacity() int { return t.arena.Load().cap }

// ResidentTier reports where the payload buffer currently lives.
func (t *Tree) ResidentTier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.payload.ResidentTier()
}

// LockStructure marks the tree as being read by an evaluation pass. Refine and merge fail with
// ErrStructureLocked until every returned unlock function has been called.
func (t *Tree) LockStructure() (unlock func()) {
	t.locks.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { t.locks.Add(-1) })
	}
}

func (t *Tree) Locked() bool {
	return t.locks.Load() > 0
}

// Allocate appends count zeroed nodes and returns the index of the first one.
func (t *Tree) Allocate(count int) (base int32, resized bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocate(count)
}

func (t *Tree) allocate(count int) (int32, bool, error) {
	if count < 1 {
		panic("allocation count must be positive")
	}
	size := int(t.size.Load())
	need := size + count
	if need > t.maxNodes {
		return 0, false, fmt.Errorf("allocate %d nodes with %d of %d in use: %w", count, size, t.maxNodes, ErrResourceExhausted)
	}

	resized := false
	if need > t.arena.Load().cap {
		if err := t.grow(need - t.arena.Load().cap); err != nil {
			return 0, false, err
		}
		resized = true
	}

	a := t.arena.Load()
	a.clear(size, need, t.n3, t.dataDim)
	t.size.Store(int32(need))
	return int32(size), resized, nil
}

func (t *Tree) payloadBytes(nodes int) int64 {
	// payload and gradient, float32 each
	return int64(nodes) * int64(t.n3) * int64(t.dataDim) * 4 * 2
}

// grow enlarges every buffer by at least capNeeded nodes and publishes the new generation.
func (t *Tree) grow(capNeeded int) error {
	old := t.arena.Load()
	add := max(capNeeded, int(float64(old.cap)*(t.growth-1.0)))
	newCap := min(old.cap+add, t.maxNodes)
	oldBytes, newBytes := t.payloadBytes(old.cap), t.payloadBytes(newCap)

	home := t.payload.tier
	staged := false
	if !fits(home, newBytes) {
		// Copying needs old and new buffers at once. Stage the copy in the fallback tier when the
		// final buffer alone still fits at home.
		if t.fallback == nil || (home.Limit() > 0 && home.Used()-oldBytes+newBytes > home.Limit()) {
			return fmt.Errorf("grow payload to %d nodes (%d bytes) in %s: %w", newCap, newBytes, home.Name(), ErrResourceExhausted)
		}
		if err := t.payload.Migrate(t.fallback); err != nil {
			return fmt.Errorf("stage payload in %s: %w: %w", t.fallback.Name(), ErrResourceExhausted, err)
		}
		staged = true
		log.Debug().Msgf("payload staged in %s tier to grow from %d to %d nodes", t.fallback.Name(), old.cap, newCap)
	}

	tier := t.payload.tier
	if err := tier.Reserve(newBytes); err != nil {
		if staged {
			_ = t.payload.Migrate(home)
		}
		return fmt.Errorf("grow payload to %d nodes: %w: %w", newCap, ErrResourceExhausted, err)
	}
	next := old.grow(newCap, t.n3, t.dataDim)
	tier.Release(oldBytes)
	t.payload.bytes = newBytes

	if staged {
		if err := t.payload.Migrate(home); err != nil {
			// Leave the grown buffer in the fallback tier; the next growth retries the move.
			log.Warn().Err(err).Msgf("payload remains in %s tier", tier.Name())
		}
	}

	t.arena.Store(next)
	log.Debug().Msgf("tree capacity grown from %d to %d nodes", old.cap, newCap)
	return nil
}

// View is a read-only handle on one generation of the arena. It is safe to use concurrently with
// selection; values may be stale but buffers are never mixed across generations.
type View struct {
	a       *arena
	size    int
	codec   Codec
	n3      int
	dataDim int
}

// generation returns the current arena with the node count it holds. Writers publish a grown arena
// before the size that needs it, so size is loaded first; compaction shrinks size after the swap, so
// it is clamped.
func (t *Tree) generation() (*arena, int) {
	size := int(t.size.Load())
	a := t.arena.Load()
	return a, min(size, a.cap)
}

func (t *Tree) Snapshot() View {
	a, size := t.generation()
	return View{
		a:       a,
		size:    size,
		codec:   t.codec,
		n3:      t.n3,
		dataDim: t.dataDim,
	}
}

func (v View) Size() int     { return v.size }
func (v View) Capacity() int { return v.a.cap }
func (v View) Codec() Codec  { return v.codec }

func (v View) Child(node int32, x, y, z int) int32 {
	return v.a.child[v.codec.Pack(node, x, y, z)]
}

func (v View) Depth(node int32) int32      { return v.a.depth[node] }
func (v View) ParentCode(node int32) int32 { return v.a.parent[node] }

func (v View) Live(node int32) bool {
	return int(node) < v.size && v.a.parent[node] != Orphan
}

func (v View) Visits(node int32, x, y, z int) int32 {
	return atomic.LoadInt32(&v.a.visits[v.codec.Pack(node, x, y, z)])
}

// Total returns the cumulative reward and visits stored by the last backpropagation.
func (v View) Total(node int32, x, y, z int) (reward, visits float64) {
	code := v.codec.Pack(node, x, y, z)
	return v.a.reward[code], v.a.total[code]
}

func (v View) InstantReward(node int32, x, y, z int) float64 {
	return v.a.instant[v.codec.Pack(node, x, y, z)]
}

// Payload aliases the data vector of one slot in this generation.
func (v View) Payload(node int32, x, y, z int) []float32 {
	off := int(v.codec.Pack(node, x, y, z)) * v.dataDim
	return v.a.payload[off : off+v.dataDim : off+v.dataDim]
}

func (t *Tree) checkNode(node int32) {
	if node < 0 || int(node) >= t.Size() {
		panic(fmt.Sprintf("node %d is not allocated (size %d)", node, t.Size()))
	}
}

func (t *Tree) checkSlot(node int32, x, y, z int) {
	t.checkNode(node)
	if !t.codec.valid(x, y, z) {
		panic(fmt.Sprintf("coordinate (%d,%d,%d) out of range for N=%d", x, y, z, t.N()))
	}
}

func (t *Tree) Child(node int32, x, y, z int) int32 {
	t.checkSlot(node, x, y, z)
	return t.Snapshot().Child(node, x, y, z)
}

func (t *Tree) IsLeaf(node int32, x, y, z int) bool {
	return t.Child(node, x, y, z) == 0
}

func (t *Tree) Depth(node int32) int {
	t.checkNode(node)
	return int(t.arena.Load().depth[node])
}

func (t *Tree) ParentCode(node int32) int32 {
	t.checkNode(node)
	return t.arena.Load().parent[node]
}

// Parent decodes the parent slot of node. ok is false for the root and orphaned nodes.
func (t *Tree) Parent(node int32) (parent Slot, ok bool) {
	code := t.ParentCode(node)
	if code < 0 {
		return Slot{}, false
	}
	return t.codec.UnpackSlot(code), true
}

// Payload returns the data vector of one slot. The slice aliases the arena and may be updated in
// place until the next growth.
func (t *Tree) Payload(node int32, x, y, z int) []float32 {
	t.checkSlot(node, x, y, z)
	off := int(t.codec.Pack(node, x, y, z)) * t.dataDim
	return t.arena.Load().payload[off : off+t.dataDim : off+t.dataDim]
}

// PayloadBuffer returns the payload of every allocated node, laid out [node][x][y][z][dim].
func (t *Tree) PayloadBuffer() []float32 {
	a, size := t.generation()
	return a.payload[:size*t.n3*t.dataDim]
}

// Grad returns the gradient buffer aligned with PayloadBuffer.
func (t *Tree) Grad() []float32 {
	a, size := t.generation()
	return a.grad[:size*t.n3*t.dataDim]
}

func (t *Tree) ZeroGrad() {
	clear(t.arena.Load().grad)
}

func fill[T any](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}
