package models

import (
	"math"
	"time"
)

// CellKey identifies one fixed spatial sampling point within a farm.
// X is longitude, Y is latitude, both in degrees.
type CellKey struct {
	X float64
	Y float64
}

// FeatureRow is the engineered view of one observation: the raw index
// values plus the temporal features derived from the cell's own history.
// All numeric maps use NaN for "not computable" so downstream consumers
// never have to distinguish absent keys from missing values.
type FeatureRow struct {
	Site       string
	X          float64
	Y          float64
	Date       time.Time
	WeekOfYear int
	Month      int

	// Values carries the raw spectral indices for this week.
	Values map[string]float64

	// SeasonMean is the per-(cell, calendar-month) mean of each core index.
	SeasonMean map[string]float64

	// Std8 is the trailing 8-week sample standard deviation per core index.
	Std8 map[string]float64

	// K is the normalized deviation score per core index.
	K map[string]float64

	// Slope8 is the trailing 8-week least-squares slope (NDVI, NDMI).
	Slope8 map[string]float64

	// Base is the 80th-percentile full-history baseline per core index.
	Base map[string]float64

	// DropFrac is the fractional drop below Base (NDVI, NDMI, SIWSI1).
	DropFrac map[string]float64

	// Drop3W is the 3-week rolling mean of DropFrac (NDVI, NDMI).
	Drop3W map[string]float64

	// Median8 is the trailing 8-week rolling median used by the drop flags
	// (NDVI, NDWI_Gao, SIWSI1).
	Median8 map[string]float64

	// HistoryWeeks counts the weeks in which this cell had at least one
	// non-missing index.
	HistoryWeeks int

	CanopyTemp float64
	Weather    map[string]float64
}

// Cell returns the spatial identity of the row.
func (r *FeatureRow) Cell() CellKey {
	return CellKey{X: r.X, Y: r.Y}
}

// Value returns the raw index value, NaN when missing.
func (r *FeatureRow) Value(name string) float64 {
	return mapGet(r.Values, name)
}

// KScore returns the normalized deviation score, NaN when missing.
func (r *FeatureRow) KScore(name string) float64 {
	return mapGet(r.K, name)
}

// Slope returns the trailing trend slope, NaN when missing.
func (r *FeatureRow) Slope(name string) float64 {
	return mapGet(r.Slope8, name)
}

// Drop returns the fractional drop below baseline, NaN when missing.
func (r *FeatureRow) Drop(name string) float64 {
	return mapGet(r.DropFrac, name)
}

// Drop3 returns the 3-week mean drop fraction, NaN when missing.
func (r *FeatureRow) Drop3(name string) float64 {
	return mapGet(r.Drop3W, name)
}

// RollingMedian returns the 8-week rolling median, NaN when missing.
func (r *FeatureRow) RollingMedian(name string) float64 {
	return mapGet(r.Median8, name)
}

// WeatherValue returns the named weekly weather aggregate, NaN when missing.
func (r *FeatureRow) WeatherValue(name string) float64 {
	return mapGet(r.Weather, name)
}

func mapGet(m map[string]float64, key string) float64 {
	if m == nil {
		return math.NaN()
	}
	if v, ok := m[key]; ok {
		return v
	}
	return math.NaN()
}
