package searcher

import "math"

// Schedule maps a step to a value.
type Schedule func(step int) float64

// ExponentialDecay interpolates log-linearly from initial at step 0 to final at maxSteps. With
// delaySteps > 0 the value starts scaled by delayMult and eases back to the plain curve.
func ExponentialDecay(initial, final float64, delaySteps int, delayMult float64, maxSteps int) Schedule {
	if maxSteps < 1 {
		panic("max steps must be positive")
	}
	return func(step int) float64 {
		if step < 0 || (initial == 0 && final == 0) {
			return 0
		}
		rate := 1.0
		if delaySteps > 0 {
			progress := math.Min(math.Max(float64(step)/float64(delaySteps), 0), 1)
			rate = delayMult + (1-delayMult)*math.Sin(0.5*math.Pi*progress)
		}
		t := math.Min(math.Max(float64(step)/float64(maxSteps), 0), 1)
		return rate * math.Exp(math.Log(initial)*(1-t)+math.Log(final)*t)
	}
}

// Constant always returns value.
func Constant(value float64) Schedule {
	return func(int) float64 { return value }
}
