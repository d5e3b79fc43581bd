// Package numeric provides NaN-aware helpers over series of float64 values.
// Missing measurements are represented as NaN throughout the pipeline, so
// every aggregate here filters to finite values first.
package numeric

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Finite returns only the finite values of the input, preserving order.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the mean of the finite values, NaN when none exist.
func Mean(values []float64) float64 {
	finite := Finite(values)
	if len(finite) == 0 {
		return math.NaN()
	}
	m, err := stats.Mean(stats.Float64Data(finite))
	if err != nil {
		return math.NaN()
	}
	return m
}

// Median returns the median of the finite values, NaN when none exist.
func Median(values []float64) float64 {
	finite := Finite(values)
	if len(finite) == 0 {
		return math.NaN()
	}
	m, err := stats.Median(stats.Float64Data(finite))
	if err != nil {
		return math.NaN()
	}
	return m
}

// Sum returns the sum of the finite values, 0 when none exist.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range Finite(values) {
		total += v
	}
	return total
}

// StdDevSample returns the sample standard deviation of the finite values,
// NaN when fewer than two exist.
func StdDevSample(values []float64) float64 {
	finite := Finite(values)
	if len(finite) < 2 {
		return math.NaN()
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(finite))
	if err != nil {
		return math.NaN()
	}
	return sd
}

// Quantile returns the q-th quantile (q in [0,1]) of the finite values.
// Single-element inputs return that element; degenerate percentile lookups
// fall back to the nearest extreme.
func Quantile(values []float64, q float64) float64 {
	finite := Finite(values)
	if len(finite) == 0 {
		return math.NaN()
	}
	if len(finite) == 1 {
		return finite[0]
	}
	p, err := stats.Percentile(stats.Float64Data(finite), q*100)
	if err != nil {
		if q <= 0.5 {
			mn, _ := stats.Min(stats.Float64Data(finite))
			return mn
		}
		mx, _ := stats.Max(stats.Float64Data(finite))
		return mx
	}
	return p
}

// MinMax returns the finite minimum and maximum, NaN when none exist.
func MinMax(values []float64) (float64, float64) {
	finite := Finite(values)
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	mn, mx := finite[0], finite[0]
	for _, v := range finite[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

// MinMaxNorm normalizes a series against its own 5th/95th percentile band.
// NaN inputs stay NaN; an all-NaN series stays all-NaN.
func MinMaxNorm(values []float64) []float64 {
	out := make([]float64, len(values))
	finite := Finite(values)
	if len(finite) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	lo := Quantile(values, 0.05)
	hi := Quantile(values, 0.95)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (v - lo) / (hi - lo + 1e-9)
	}
	return out
}

// Clamp01 clips v to the [0,1] interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FillNaN replaces non-finite entries with the given fill value.
func FillNaN(values []float64, fill float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = fill
		} else {
			out[i] = v
		}
	}
	return out
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
