package metrics

import (
	"sync/atomic"
	"time"

	"mcot/tree"
)

// Round phases.
const (
	PhaseRefine = "refine"
	PhasePrune  = "prune"
)

type RoundMetric struct {
	Round     int
	Phase     string
	StartTime time.Time
	Duration  time.Duration
	Passes    int // evaluation passes until stable
	Selected  int
	Refined   int
	Resized   bool
	Merged    int
	NaNs      int
	tree.Stats
}

type RunMetric struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Rounds    int
	Exhausted bool // stopped by max nodes or memory
	Saturated bool // stopped because nothing could be refined
	tree.Stats
}

type Collector interface {
	Start(round int, phase string)
	AddPass()
	AddSelected(n int)
	AddRefined(n int)
	SetResized()
	AddMerged(n int)
	AddNaNs(n int)
	Complete(stats tree.Stats) RoundMetric
}

type collector struct {
	round     int
	phase     string
	startTime time.Time
	passes    atomic.Int32
	selected  atomic.Int32
	refined   atomic.Int32
	merged    atomic.Int32
	nans      atomic.Int32
	resized   atomic.Bool
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) Start(round int, phase string) {
	m.round = round
	m.phase = phase
	m.startTime = time.Now()
	m.passes.Store(0)
	m.selected.Store(0)
	m.refined.Store(0)
	m.merged.Store(0)
	m.nans.Store(0)
	m.resized.Store(false)
}

func (m *collector) AddPass() {
	m.passes.Add(1)
}

func (m *collector) AddSelected(n int) {
	m.selected.Add(int32(n))
}

func (m *collector) AddRefined(n int) {
	m.refined.Add(int32(n))
}

func (m *collector) SetResized() {
	m.resized.Store(true)
}

func (m *collector) AddMerged(n int) {
	m.merged.Add(int32(n))
}

func (m *collector) AddNaNs(n int) {
	m.nans.Add(int32(n))
}

func (m *collector) Complete(stats tree.Stats) RoundMetric {
	return RoundMetric{
		Round:     m.round,
		Phase:     m.phase,
		StartTime: m.startTime,
		Duration:  time.Since(m.startTime),
		Passes:    int(m.passes.Load()),
		Selected:  int(m.selected.Load()),
		Refined:   int(m.refined.Load()),
		Resized:   m.resized.Load(),
		Merged:    int(m.merged.Load()),
		NaNs:      int(m.nans.Load()),
		Stats:     stats,
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(round int, phase string)         {}
func (m *dummyCollector) AddPass()                              {}
func (m *dummyCollector) AddSelected(n int)                     {}
func (m *dummyCollector) AddRefined(n int)                      {}
func (m *dummyCollector) SetResized()                           {}
func (m *dummyCollector) AddMerged(n int)                       {}
func (m *dummyCollector) AddNaNs(n int)                         {}
func (m *dummyCollector) Complete(stats tree.Stats) RoundMetric { return RoundMetric{} }
