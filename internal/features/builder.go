// Package features turns raw weekly index series into the engineered
// per-cell temporal features consumed by the anomaly scorer and the risk
// classifier: seasonal baselines, rolling deviation scores, trend slopes
// and baseline drop fractions.
package features

import (
	"fmt"
	"math"
	"sort"

	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
)

const (
	rollingWindow  = 8
	rollingMinObs  = 4
	dropMeanWindow = 3
	dropMeanMinObs = 2
	baselineMinObs = 4
	stdEpsilon     = 1e-6
	dropEpsilon    = 1e-9
)

// slopeIndices and dropIndices are the subsets of the core indices for
// which trend and baseline-drop features are produced.
var (
	slopeIndices  = []string{"NDVI", "NDMI"}
	dropIndices   = []string{"NDVI", "NDMI", "SIWSI1"}
	drop3WIndices = []string{"NDVI", "NDMI"}
	medianIndices = []string{"SIWSI1", "NDWI_Gao", "NDVI"}
)

// Builder derives engineered features cell by cell. Cells with less
// history than minHistoryWeeks are excluded from the output entirely.
type Builder struct {
	minHistoryWeeks int
}

func NewBuilder(minHistoryWeeks int) *Builder {
	return &Builder{minHistoryWeeks: minHistoryWeeks}
}

// Build computes one FeatureRow per observation, ordered by cell and
// date. Weeks with no index at all are dropped after feature computation
// so rolling windows still see them as gaps.
func (b *Builder) Build(observations []models.Observation) ([]models.FeatureRow, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("no observations available to build features from")
	}

	sorted := make([]models.Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if a.CellX != b.CellX {
			return a.CellX < b.CellX
		}
		if a.CellY != b.CellY {
			return a.CellY < b.CellY
		}
		return a.ObservedAt.Before(b.ObservedAt)
	})

	var rows []models.FeatureRow
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) &&
			sorted[end].CellX == sorted[start].CellX &&
			sorted[end].CellY == sorted[start].CellY {
			end++
		}
		rows = append(rows, b.buildCell(sorted[start:end])...)
		start = end
	}

	// Drop all-missing weeks, then gate cells on history depth.
	filtered := rows[:0]
	for _, row := range rows {
		if !hasAnyIndexValue(&row) {
			continue
		}
		if row.HistoryWeeks < b.minHistoryWeeks {
			continue
		}
		filtered = append(filtered, row)
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("no cell has at least %d weeks of usable history", b.minHistoryWeeks)
	}
	return filtered, nil
}

// buildCell computes the full feature set for one date-sorted cell series.
func (b *Builder) buildCell(cell []models.Observation) []models.FeatureRow {
	n := len(cell)

	series := make(map[string][]float64, len(models.IndexNames))
	for _, name := range models.IndexNames {
		values := make([]float64, n)
		for i := range cell {
			values[i] = cell[i].Index(name)
		}
		series[name] = values
	}

	historyWeeks := 0
	for i := range cell {
		if cell[i].HasAnyIndex() {
			historyWeeks++
		}
	}

	seasonMean := seasonalMeans(cell, series)

	std8 := make(map[string][]float64, len(models.CoreIndexNames))
	kScores := make(map[string][]float64, len(models.CoreIndexNames))
	base := make(map[string][]float64, len(models.CoreIndexNames))
	for _, name := range models.CoreIndexNames {
		std8[name] = rollingStd(series[name], rollingWindow, rollingMinObs)
		kScores[name] = kScore(cell, series[name], seasonMean[name], std8[name])
		base[name] = fullHistoryBaseline(series[name])
	}

	slope8 := make(map[string][]float64, len(slopeIndices))
	for _, name := range slopeIndices {
		slope8[name] = rollingSlope(series[name], rollingWindow, rollingMinObs)
	}

	dropFrac := make(map[string][]float64, len(dropIndices))
	for _, name := range dropIndices {
		dropFrac[name] = dropFraction(series[name], base[name])
	}

	drop3W := make(map[string][]float64, len(drop3WIndices))
	for _, name := range drop3WIndices {
		drop3W[name] = rollingMean(dropFrac[name], dropMeanWindow, dropMeanMinObs)
	}

	median8 := make(map[string][]float64, len(medianIndices))
	for _, name := range medianIndices {
		median8[name] = rollingMedian(series[name], rollingWindow, rollingMinObs)
	}

	rows := make([]models.FeatureRow, n)
	for i := range cell {
		obs := &cell[i]
		_, week := obs.ObservedAt.ISOWeek()

		row := models.FeatureRow{
			Site:         obs.Site,
			X:            obs.CellX,
			Y:            obs.CellY,
			Date:         obs.ObservedAt,
			WeekOfYear:   week,
			Month:        int(obs.ObservedAt.Month()),
			Values:       make(map[string]float64, len(models.IndexNames)),
			SeasonMean:   make(map[string]float64, len(models.CoreIndexNames)),
			Std8:         make(map[string]float64, len(models.CoreIndexNames)),
			K:            make(map[string]float64, len(models.CoreIndexNames)),
			Slope8:       make(map[string]float64, len(slopeIndices)),
			Base:         make(map[string]float64, len(models.CoreIndexNames)),
			DropFrac:     make(map[string]float64, len(dropIndices)),
			Drop3W:       make(map[string]float64, len(drop3WIndices)),
			Median8:      make(map[string]float64, len(medianIndices)),
			HistoryWeeks: historyWeeks,
			CanopyTemp:   canopyTemp(obs),
			Weather:      obs.Weather(),
		}

		for _, name := range models.IndexNames {
			row.Values[name] = series[name][i]
		}
		for _, name := range models.CoreIndexNames {
			row.SeasonMean[name] = seasonMean[name][i]
			row.Std8[name] = std8[name][i]
			row.K[name] = kScores[name][i]
			row.Base[name] = base[name][i]
		}
		for _, name := range slopeIndices {
			row.Slope8[name] = slope8[name][i]
		}
		for _, name := range dropIndices {
			row.DropFrac[name] = dropFrac[name][i]
		}
		for _, name := range drop3WIndices {
			row.Drop3W[name] = drop3W[name][i]
		}
		for _, name := range medianIndices {
			row.Median8[name] = median8[name][i]
		}

		rows[i] = row
	}
	return rows
}

// seasonalMeans computes, for each core index, the mean of that index over
// the cell's observations sharing the same calendar month.
func seasonalMeans(cell []models.Observation, series map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(models.CoreIndexNames))
	for _, name := range models.CoreIndexNames {
		byMonth := make(map[int][]float64, 12)
		for i := range cell {
			month := int(cell[i].ObservedAt.Month())
			byMonth[month] = append(byMonth[month], series[name][i])
		}
		monthMean := make(map[int]float64, len(byMonth))
		for month, values := range byMonth {
			monthMean[month] = numeric.Mean(values)
		}
		values := make([]float64, len(cell))
		for i := range cell {
			values[i] = monthMean[int(cell[i].ObservedAt.Month())]
		}
		out[name] = values
	}
	return out
}

// kScore is the normalized deviation (value - baseline) / std. The seasonal
// baseline falls back to the value itself when unavailable; a std that is
// non-finite or below epsilon is unusable. A valid value with no usable
// reference scores 0 rather than NaN, so short histories do not manufacture
// anomalies.
func kScore(cell []models.Observation, values, seasonMean, std []float64) []float64 {
	out := make([]float64, len(cell))
	for i := range cell {
		value := values[i]
		if !numeric.IsFinite(value) {
			out[i] = math.NaN()
			continue
		}

		baseline := seasonMean[i]
		baseOK := numeric.IsFinite(baseline)
		if !baseOK {
			baseline = value
		}

		sd := std[i]
		stdOK := numeric.IsFinite(sd) && sd > stdEpsilon

		if !stdOK || !baseOK {
			out[i] = 0
			continue
		}
		out[i] = (value - baseline) / sd
	}
	return out
}

// fullHistoryBaseline is the 80th percentile of the cell's entire series,
// undefined below baselineMinObs valid points.
func fullHistoryBaseline(values []float64) []float64 {
	out := make([]float64, len(values))
	baseline := math.NaN()
	if len(numeric.Finite(values)) >= baselineMinObs {
		baseline = numeric.Quantile(values, 0.80)
	}
	for i := range out {
		out[i] = baseline
	}
	return out
}

// dropFraction is (baseline - value) / (baseline + epsilon).
func dropFraction(values, base []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if !numeric.IsFinite(values[i]) || !numeric.IsFinite(base[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (base[i] - values[i]) / (base[i] + dropEpsilon)
	}
	return out
}

func rollingStd(values []float64, window, minValid int) []float64 {
	return rollingApply(values, window, minValid, numeric.StdDevSample)
}

func rollingMean(values []float64, window, minValid int) []float64 {
	return rollingApply(values, window, minValid, numeric.Mean)
}

func rollingMedian(values []float64, window, minValid int) []float64 {
	return rollingApply(values, window, minValid, numeric.Median)
}

func rollingApply(values []float64, window, minValid int, agg func([]float64) float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := values[start : i+1]
		if len(numeric.Finite(win)) < minValid {
			out[i] = math.NaN()
			continue
		}
		out[i] = agg(win)
	}
	return out
}

// rollingSlope is the windowed least-squares slope over the trailing
// window: cov(t, y) / var(t). Missing values inside the window are imputed
// with the window mean so they pull the slope toward zero. Defined only
// once a full window of positions is available.
func rollingSlope(values []float64, window, minValid int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}

	t := make([]float64, window)
	var tMean float64
	for j := range t {
		t[j] = float64(j)
		tMean += t[j]
	}
	tMean /= float64(window)

	var tVar float64
	for j := range t {
		tVar += (t[j] - tMean) * (t[j] - tMean)
	}
	tVar /= float64(window)

	for i := window - 1; i < len(values); i++ {
		win := values[i-window+1 : i+1]
		finite := numeric.Finite(win)
		if len(finite) < minValid {
			continue
		}

		mean := numeric.Mean(finite)
		var yMean float64
		y := make([]float64, window)
		for j, v := range win {
			if !numeric.IsFinite(v) {
				v = mean
			}
			y[j] = v
			yMean += v
		}
		yMean /= float64(window)

		var cov float64
		for j := range y {
			cov += (t[j] - tMean) * (y[j] - yMean)
		}
		cov /= float64(window)

		out[i] = cov / (tVar + stdEpsilon)
	}
	return out
}

func canopyTemp(obs *models.Observation) float64 {
	if obs.CanopyTemp == nil {
		return math.NaN()
	}
	return *obs.CanopyTemp
}

func hasAnyIndexValue(row *models.FeatureRow) bool {
	for _, name := range models.IndexNames {
		if numeric.IsFinite(row.Values[name]) {
			return true
		}
	}
	return false
}
