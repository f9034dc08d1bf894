package searcher

import "math"

// Stability ends an evaluation pass once the gap between two losses stops changing: the change
// must stay below minDelta for tolerance consecutive checks.
type Stability struct {
	tolerance int
	minDelta  float64
	counter   int
	prevDelta float64
}

func NewStability(tolerance int, minDelta float64) *Stability {
	if tolerance < 1 {
		panic("tolerance must be positive")
	}
	return &Stability{tolerance: tolerance, minDelta: minDelta}
}

// Check records one pass and reports whether the pass loop should stop.
func (s *Stability) Check(trainLoss, validationLoss float64) bool {
	delta := math.Abs(validationLoss - trainLoss)
	if math.Abs(delta-s.prevDelta) < s.minDelta {
		s.counter++
		if s.counter >= s.tolerance {
			return true
		}
	}
	s.prevDelta = delta
	return false
}

// SetMinDelta updates the threshold, typically from a decay schedule.
func (s *Stability) SetMinDelta(minDelta float64) {
	s.minDelta = minDelta
}
