package searcher

import (
	"fmt"
	"math"
)

// Score is a policy value. Scores are only comparable when produced by the same policy.
type Score struct {
	Sign int
	Mag  float64
}

// Less reports whether s ranks below o.
func (s Score) Less(o Score) bool {
	if s.Sign != o.Sign {
		return s.Sign < o.Sign
	}
	switch s.Sign {
	case 1:
		return s.Mag < o.Mag
	case -1:
		return s.Mag > o.Mag
	default:
		return false
	}
}

// Policy ranks child slots from their cumulative reward and visits.
type Policy interface {
	Name() string
	Score(reward, visits float64) Score
}

const (
	ExponentialPolicy = "exponential"
	LogDomainPolicy   = "log"
)

func NewPolicy(name string) (Policy, error) {
	switch name {
	case ExponentialPolicy:
		return Exponential{}, nil
	case LogDomainPolicy, "":
		return LogDomain{}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// Exponential is reward / exp(1 + visits), evaluated directly. The denominator overflows past
// roughly 708 visits and every score collapses to zero.
type Exponential struct{}

func (Exponential) Name() string { return ExponentialPolicy }

func (Exponential) Score(reward, visits float64) Score {
	v := reward / math.Exp(1+visits)
	return Score{Sign: sign(v), Mag: math.Abs(v)}
}

// LogDomain ranks like Exponential but keeps the magnitude as log|reward| - (1 + visits), which
// never overflows.
type LogDomain struct{}

func (LogDomain) Name() string { return LogDomainPolicy }

func (LogDomain) Score(reward, visits float64) Score {
	s := sign(reward)
	if s == 0 {
		return Score{}
	}
	return Score{Sign: s, Mag: math.Log(math.Abs(reward)) - (1 + visits)}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default: // zero and NaN
		return 0
	}
}
