package tree

import (
	"fmt"
	"sync/atomic"
)

// Tier is a memory pool the payload buffer can reside in.
type Tier interface {
	Name() string
	Reserve(bytes int64) error
	Release(bytes int64)
	Used() int64
	// Limit is the tier capacity in bytes, <= 0 means unbounded.
	Limit() int64
}

// Resident is implemented by buffers that can move between tiers.
type Resident interface {
	ResidentTier() Tier
	Migrate(to Tier) error
}

// MemoryTier keeps byte accounting for one tier.
type MemoryTier struct {
	name  string
	limit int64
	used  atomic.Int64
}

func NewMemoryTier(name string, limit int64) *MemoryTier {
	return &MemoryTier{name: name, limit: limit}
}

func (m *MemoryTier) Name() string { return m.name }
func (m *MemoryTier) Limit() int64 { return m.limit }
func (m *MemoryTier) Used() int64  { return m.used.Load() }

func (m *MemoryTier) Reserve(bytes int64) error {
	for {
		used := m.used.Load()
		if m.limit > 0 && used+bytes > m.limit {
			return fmt.Errorf("%s: need %d bytes, %d of %d in use: %w", m.name, bytes, used, m.limit, ErrTierFull)
		}
		if m.used.CompareAndSwap(used, used+bytes) {
			return nil
		}
	}
}

func (m *MemoryTier) Release(bytes int64) {
	m.used.Add(-bytes)
}

// fits reports whether the tier could hold bytes more right now.
func fits(t Tier, bytes int64) bool {
	return t.Limit() <= 0 || t.Used()+bytes <= t.Limit()
}

// residency tracks which tier holds the payload buffer and how many bytes it accounts for.
type residency struct {
	tier  Tier
	bytes int64
}

func (r *residency) ResidentTier() Tier {
	return r.tier
}

func (r *residency) Migrate(to Tier) error {
	if to == r.tier {
		return nil
	}
	if err := to.Reserve(r.bytes); err != nil {
		return err
	}
	r.tier.Release(r.bytes)
	r.tier = to
	return nil
}

// resize changes the accounted size in the current tier.
func (r *residency) resize(bytes int64) error {
	if bytes > r.bytes {
		if err := r.tier.Reserve(bytes - r.bytes); err != nil {
			return err
		}
	} else {
		r.tier.Release(r.bytes - bytes)
	}
	r.bytes = bytes
	return nil
}
