package tree

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const FormatVersion = 1

// Record is the serialised form of a tree: its options and every allocated buffer row. Orphaned
// nodes are kept so node indices survive a round trip.
type Record struct {
	Version    int        `cbor:"1,keyasint"`
	N          int        `cbor:"2,keyasint"`
	DataDim    int        `cbor:"3,keyasint"`
	DepthLimit int        `cbor:"4,keyasint"`
	Growth     float64    `cbor:"5,keyasint"`
	MaxNodes   int        `cbor:"6,keyasint"`
	InitValue  float32    `cbor:"7,keyasint"`
	Center     [3]float64 `cbor:"8,keyasint"`
	Radius     [3]float64 `cbor:"9,keyasint"`
	Size       int        `cbor:"10,keyasint"`
	Payload    []float32  `cbor:"11,keyasint"`
	Child      []int32    `cbor:"12,keyasint"`
	Parent     []int32    `cbor:"13,keyasint"`
	Depth      []int32    `cbor:"14,keyasint"`
	Visits     []int32    `cbor:"15,keyasint"`
	Instant    []float64  `cbor:"16,keyasint"`
	Reward     []float64  `cbor:"17,keyasint"`
	Total      []float64  `cbor:"18,keyasint"`
}

// Record copies the tree into its serialised form.
func (t *Tree) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := t.arena.Load()
	size := int(t.size.Load())
	slots := size * t.n3
	visits := make([]int32, slots)
	for i := range visits {
		visits[i] = atomic.LoadInt32(&a.visits[i])
	}
	return Record{
		Version:    FormatVersion,
		N:          t.N(),
		DataDim:    t.dataDim,
		DepthLimit: int(t.depthLimit),
		Growth:     t.growth,
		MaxNodes:   t.maxNodes,
		InitValue:  t.initValue,
		Center:     t.center,
		Radius:     t.radius,
		Size:       size,
		Payload:    append([]float32(nil), a.payload[:slots*t.dataDim]...),
		Child:      append([]int32(nil), a.child[:slots]...),
		Parent:     append([]int32(nil), a.parent[:size]...),
		Depth:      append([]int32(nil), a.depth[:size]...),
		Visits:     visits,
		Instant:    append([]float64(nil), a.instant[:slots]...),
		Reward:     append([]float64(nil), a.reward[:slots]...),
		Total:      append([]float64(nil), a.total[:slots]...),
	}
}

func (r *Record) check() error {
	if r.Version != FormatVersion {
		return fmt.Errorf("version %d: %w", r.Version, ErrVersionMismatch)
	}
	if r.N < 2 || r.DataDim < 1 || r.Size < 1 || r.Size > r.MaxNodes {
		return fmt.Errorf("bad header N=%d dim=%d size=%d: %w", r.N, r.DataDim, r.Size, ErrCorrupt)
	}
	slots := r.Size * r.N * r.N * r.N
	switch {
	case len(r.Payload) != slots*r.DataDim,
		len(r.Child) != slots,
		len(r.Parent) != r.Size,
		len(r.Depth) != r.Size,
		len(r.Visits) != slots,
		len(r.Instant) != slots,
		len(r.Reward) != slots,
		len(r.Total) != slots:
		return fmt.Errorf("buffer lengths do not match %d nodes: %w", r.Size, ErrCorrupt)
	}
	if r.Parent[0] != RootParent {
		return fmt.Errorf("node 0 is not the root: %w", ErrCorrupt)
	}
	for code, off := range r.Child {
		if off == 0 {
			continue
		}
		child := code/(slots/r.Size) + int(off)
		if off < 0 || child >= r.Size || r.Parent[child] != int32(code) {
			return fmt.Errorf("slot %d points at node %d: %w", code, child, ErrCorrupt)
		}
	}
	return nil
}

// FromRecord rebuilds a tree. Options may add memory tiers; structural options come from the
// record.
func FromRecord(r Record, options ...Option) (*Tree, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	options = append(options,
		WithBranching(r.N),
		WithDataDim(r.DataDim),
		WithDepthLimit(r.DepthLimit),
		WithGrowthFactor(r.Growth),
		WithMaxNodes(r.MaxNodes),
		WithInitValue(r.InitValue),
		WithBounds(r.Center, r.Radius),
		WithInitReserve(r.Size),
	)
	t, err := New(options...)
	if err != nil {
		return nil, err
	}
	if t.initRefine > 0 {
		return nil, fmt.Errorf("initial refine cannot be applied to a restored tree")
	}

	a := t.arena.Load()
	copy(a.payload, r.Payload)
	copy(a.child, r.Child)
	copy(a.parent, r.Parent)
	copy(a.depth, r.Depth)
	copy(a.visits, r.Visits)
	copy(a.instant, r.Instant)
	copy(a.reward, r.Reward)
	copy(a.total, r.Total)
	t.size.Store(int32(r.Size))
	return t, nil
}

// MarshalBinary encodes the tree as zstd compressed CBOR.
func (t *Tree) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte, options ...Option) (*Tree, error) {
	return ReadFrom(bytes.NewReader(data), options...)
}

func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	counter := &countingWriter{w: w}
	enc, err := zstd.NewWriter(counter)
	if err != nil {
		return 0, err
	}
	if err := cbor.NewEncoder(enc).Encode(t.Record()); err != nil {
		_ = enc.Close()
		return counter.n, fmt.Errorf("encode tree: %w", err)
	}
	if err := enc.Close(); err != nil {
		return counter.n, fmt.Errorf("compress tree: %w", err)
	}
	return counter.n, nil
}

func ReadFrom(r io.Reader, options ...Option) (*Tree, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var record Record
	if err := cbor.NewDecoder(dec).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode tree: %w: %w", ErrCorrupt, err)
	}
	return FromRecord(record, options...)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
