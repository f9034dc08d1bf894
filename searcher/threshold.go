package searcher

import (
	"fmt"
	"math"

	"mcot/utils"

	"golang.org/x/exp/slices"
)

// Threshold methods for choosing which leaves to prune.
const (
	Li   = "li"
	Otsu = "otsu"
	Mean = "mean"
)

const (
	otsuBins = 256
	liRounds = 1000
)

// Threshold picks a cut-off separating low and high values. NaNs count as zero.
func Threshold(values []float64, method string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("threshold of no values")
	}
	clean := make([]float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			clean[i] = v
		}
	}

	switch method {
	case Li:
		return li(clean), nil
	case Otsu:
		return otsu(clean), nil
	case Mean:
		return utils.Mean(clean), nil
	default:
		return 0, fmt.Errorf("unknown threshold method %q", method)
	}
}

// li is the iterative minimum cross entropy threshold.
func li(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	tolerance := math.Inf(1)
	for i := 1; i < len(sorted); i++ {
		tolerance = min(tolerance, sorted[i]-sorted[i-1])
	}
	tolerance /= 2

	// Cross entropy needs positive intensities.
	low := sorted[0]
	next := utils.Mean(values) - low
	curr := -2 * tolerance
	for round := 0; round < liRounds && math.Abs(next-curr) > tolerance; round++ {
		curr = next
		var fore, back float64
		var nFore, nBack int
		for _, v := range values {
			if v-low > curr {
				fore += v - low
				nFore++
			} else {
				back += v - low
				nBack++
			}
		}
		if nFore == 0 || nBack == 0 {
			break
		}
		meanFore, meanBack := fore/float64(nFore), back/float64(nBack)
		if meanBack == 0 {
			break
		}
		next = (meanBack - meanFore) / (math.Log(meanBack) - math.Log(meanFore))
	}
	return next + low
}

// otsu maximises the between-class variance of a histogram of the values.
func otsu(values []float64) float64 {
	low, high := slices.Min(values), slices.Max(values)
	if low == high {
		return low
	}
	width := (high - low) / otsuBins
	hist := make([]float64, otsuBins)
	for _, v := range values {
		bin := min(int((v-low)/width), otsuBins-1)
		hist[bin]++
	}
	center := func(bin int) float64 { return low + (float64(bin)+0.5)*width }

	total := float64(len(values))
	sumAll := 0.0
	for bin, count := range hist {
		sumAll += count * center(bin)
	}

	best, bestVar := 0, -1.0
	weightBack, sumBack := 0.0, 0.0
	for bin := 0; bin < otsuBins-1; bin++ {
		weightBack += hist[bin]
		sumBack += hist[bin] * center(bin)
		weightFore := total - weightBack
		if weightBack == 0 || weightFore == 0 {
			continue
		}
		meanBack := sumBack / weightBack
		meanFore := (sumAll - sumBack) / weightFore
		between := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if between > bestVar {
			best, bestVar = bin, between
		}
	}
	return center(best)
}
