package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns 0 for an empty window.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev is the sample standard deviation (N-1). Windows with fewer than
// two points have no spread and yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := stat.StdDev(values, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}
