package tree

// arena is one generation of the parallel buffers. Its shape never changes after publication;
// growth and compaction build a new arena and swap it in.
type arena struct {
	cap     int
	payload []float32 // [node][x][y][z][dim]
	grad    []float32
	child   []int32 // [node][x][y][z], relative offset, 0 = leaf
	parent  []int32 // packed parent slot
	depth   []int32
	visits  []int32 // accessed atomically
	instant []float64
	reward  []float64 // cumulative
	total   []float64 // cumulative visits
}

func newArena(capacity, n3, dataDim int) *arena {
	slots := capacity * n3
	return &arena{
		cap:     capacity,
		payload: make([]float32, slots*dataDim),
		grad:    make([]float32, slots*dataDim),
		child:   make([]int32, slots),
		parent:  make([]int32, capacity),
		depth:   make([]int32, capacity),
		visits:  make([]int32, slots),
		instant: make([]float64, slots),
		reward:  make([]float64, slots),
		total:   make([]float64, slots),
	}
}

func (a *arena) grow(capacity, n3, dataDim int) *arena {
	next := newArena(capacity, n3, dataDim)
	copy(next.payload, a.payload)
	copy(next.grad, a.grad)
	copy(next.child, a.child)
	copy(next.parent, a.parent)
	copy(next.depth, a.depth)
	copy(next.visits, a.visits)
	copy(next.instant, a.instant)
	copy(next.reward, a.reward)
	copy(next.total, a.total)
	return next
}

// clear zeroes nodes [from, to).
func (a *arena) clear(from, to, n3, dataDim int) {
	clear(a.payload[from*n3*dataDim : to*n3*dataDim])
	clear(a.grad[from*n3*dataDim : to*n3*dataDim])
	clear(a.child[from*n3 : to*n3])
	clear(a.parent[from:to])
	clear(a.depth[from:to])
	clear(a.visits[from*n3 : to*n3])
	clear(a.instant[from*n3 : to*n3])
	clear(a.reward[from*n3 : to*n3])
	clear(a.total[from*n3 : to*n3])
}

// moveNode copies node src of a into node dst of b.
func (a *arena) moveNode(b *arena, src, dst, n3, dataDim int) {
	copy(b.payload[dst*n3*dataDim:(dst+1)*n3*dataDim], a.payload[src*n3*dataDim:(src+1)*n3*dataDim])
	copy(b.grad[dst*n3*dataDim:(dst+1)*n3*dataDim], a.grad[src*n3*dataDim:(src+1)*n3*dataDim])
	copy(b.child[dst*n3:(dst+1)*n3], a.child[src*n3:(src+1)*n3])
	copy(b.visits[dst*n3:(dst+1)*n3], a.visits[src*n3:(src+1)*n3])
	copy(b.instant[dst*n3:(dst+1)*n3], a.instant[src*n3:(src+1)*n3])
	copy(b.reward[dst*n3:(dst+1)*n3], a.reward[src*n3:(src+1)*n3])
	copy(b.total[dst*n3:(dst+1)*n3], a.total[src*n3:(src+1)*n3])
	b.parent[dst] = a.parent[src]
	b.depth[dst] = a.depth[src]
}
