// Package signals reduces point-level classifications into the farm-level
// aggregates consumed by the alert engine, the map view and the report
// context block.
package signals

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
)

const contextWindowWeeks = 4

// BuildAlertSignals tallies the latest week's risk classes, provenance
// rules and stress flags, and surfaces the top hotspot cells per focus.
func BuildAlertSignals(assessments []models.CellAssessment, hotspotLimit int) models.AlertSignals {
	signals := models.AlertSignals{
		RiskCountsLatest: map[string]int{
			string(models.RiskHealthy):  0,
			string(models.RiskMonitor):  0,
			string(models.RiskCritical): 0,
		},
		RuleCountsLatest: map[string]int{},
		FlagCountsLatest: map[string]int{},
		Hotspots:         models.HotspotSet{Critical: []models.Hotspot{}, Monitor: []models.Hotspot{}, Stress: []models.Hotspot{}},
	}
	for _, name := range models.FlagNames {
		signals.FlagCountsLatest[name] = 0
	}
	if len(assessments) == 0 {
		return signals
	}

	latest := latestDate(assessments)
	signals.LatestDate = latest.Format("2006-01-02")

	var week []models.CellAssessment
	for _, a := range assessments {
		if a.Date.Equal(latest) {
			week = append(week, a)
		}
	}
	signals.TotalPixelsLatest = len(week)

	for _, a := range week {
		signals.RiskCountsLatest[string(a.Risk)]++
		signals.RuleCountsLatest[string(a.Rule)]++
		for name, raised := range a.Flags {
			if raised {
				signals.FlagCountsLatest[name]++
			}
		}
	}

	signals.Hotspots.Critical = topHotspots(week, hotspotLimit, func(a *models.CellAssessment) bool {
		return a.Risk == models.RiskCritical
	})
	signals.Hotspots.Monitor = topHotspots(week, hotspotLimit, func(a *models.CellAssessment) bool {
		return a.Risk == models.RiskMonitor
	})
	signals.Hotspots.Stress = topHotspots(week, hotspotLimit, func(a *models.CellAssessment) bool {
		return a.Rule == models.RuleMonitorRPWTail || a.Rule == models.RuleCriticalRPWTail
	})

	return signals
}

// CurrentHealth converts the latest-week counts into percentages.
func CurrentHealth(signals models.AlertSignals) models.CurrentHealth {
	total := signals.TotalPixelsLatest
	if total == 0 {
		return models.CurrentHealth{}
	}
	pct := func(class models.RiskClass) float64 {
		return float64(signals.RiskCountsLatest[string(class)]) / float64(total) * 100.0
	}
	return models.CurrentHealth{
		HealthyPct:  pct(models.RiskHealthy),
		MonitorPct:  pct(models.RiskMonitor),
		CriticalPct: pct(models.RiskCritical),
	}
}

// IndicesHistory returns up to `weeks` most recent weekly farm-level
// averages of the three headline indices.
func IndicesHistory(rows []models.FeatureRow, weeks int) []models.IndexHistoryPoint {
	if len(rows) == 0 {
		return []models.IndexHistoryPoint{}
	}

	type weekValues struct {
		ndvi, ndmi, ndre []float64
	}
	byDate := map[time.Time]*weekValues{}
	var dates []time.Time
	for i := range rows {
		row := &rows[i]
		wv, ok := byDate[row.Date]
		if !ok {
			wv = &weekValues{}
			byDate[row.Date] = wv
			dates = append(dates, row.Date)
		}
		wv.ndvi = append(wv.ndvi, row.Value("NDVI"))
		wv.ndmi = append(wv.ndmi, row.Value("NDMI"))
		wv.ndre = append(wv.ndre, row.Value("NDRE"))
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) > weeks {
		dates = dates[len(dates)-weeks:]
	}

	out := make([]models.IndexHistoryPoint, 0, len(dates))
	for _, date := range dates {
		wv := byDate[date]
		out = append(out, models.IndexHistoryPoint{
			Date: date.Format("2006-01-02"),
			NDVI: meanOrNil(wv.ndvi),
			NDMI: meanOrNil(wv.ndmi),
			NDRE: meanOrNil(wv.ndre),
		})
	}
	return out
}

// ContextStats summarizes the trailing four weeks: median composite score,
// total rainfall and mean temperature. Weather is recorded once per week,
// so per-week values are deduplicated before aggregating.
func ContextStats(rows []models.FeatureRow, assessments []models.CellAssessment) models.ContextStats {
	if len(rows) == 0 {
		return models.ContextStats{}
	}

	latest := rows[0].Date
	for i := range rows {
		if rows[i].Date.After(latest) {
			latest = rows[i].Date
		}
	}
	cutoff := latest.AddDate(0, 0, -7*contextWindowWeeks)

	var rpw []float64
	for _, a := range assessments {
		if !a.Date.Before(cutoff) {
			rpw = append(rpw, a.RPWScore)
		}
	}

	precipByWeek := map[time.Time]float64{}
	tempByWeek := map[time.Time]float64{}
	for i := range rows {
		row := &rows[i]
		if row.Date.Before(cutoff) {
			continue
		}
		if v := row.WeatherValue("precip_mm"); numeric.IsFinite(v) {
			precipByWeek[row.Date] = v
		}
		if v := row.WeatherValue("t2m_mean"); numeric.IsFinite(v) {
			tempByWeek[row.Date] = v
		}
	}

	var rain, tempSum float64
	for _, v := range precipByWeek {
		rain += v
	}
	for _, v := range tempByWeek {
		tempSum += v
	}

	stats := models.ContextStats{RainMM: rain}
	if med := numeric.Median(rpw); numeric.IsFinite(med) {
		stats.RPWScoreMed = med
	}
	if len(tempByWeek) > 0 {
		stats.TMean = tempSum / float64(len(tempByWeek))
	}
	return stats
}

// HealthMapPoints emits the latest status of every cell together with its
// predicted-next-week status from the forecast lookup.
func HealthMapPoints(assessments []models.CellAssessment, forecastLookup map[string]int) []models.HealthMapPoint {
	latestByCell := map[models.CellKey]models.CellAssessment{}
	for _, a := range assessments {
		key := models.CellKey{X: a.X, Y: a.Y}
		if prev, ok := latestByCell[key]; !ok || a.Date.After(prev.Date) {
			latestByCell[key] = a
		}
	}

	points := make([]models.HealthMapPoint, 0, len(latestByCell))
	for _, a := range latestByCell {
		lat := roundCoord(a.Y)
		lng := roundCoord(a.X)
		points = append(points, models.HealthMapPoint{
			Lat: lat,
			Lng: lng,
			S:   statusCode(a.Risk),
			PS:  forecastLookup[CoordKey(lat, lng)],
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Lat != points[j].Lat {
			return points[i].Lat < points[j].Lat
		}
		return points[i].Lng < points[j].Lng
	})
	return points
}

// CoordKey builds the lookup key shared with the forecast integrator.
func CoordKey(lat, lng float64) string {
	return fmt.Sprintf("%s_%s",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lng, 'f', -1, 64))
}

// RoundCoord rounds a coordinate to 6 decimal places for map payloads.
func RoundCoord(v float64) float64 {
	return roundCoord(v)
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func statusCode(risk models.RiskClass) int {
	switch risk {
	case models.RiskCritical:
		return 2
	case models.RiskMonitor:
		return 1
	}
	return 0
}

func topHotspots(week []models.CellAssessment, limit int, match func(*models.CellAssessment) bool) []models.Hotspot {
	var selected []models.CellAssessment
	for i := range week {
		if match(&week[i]) {
			selected = append(selected, week[i])
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].RPWScore != selected[j].RPWScore {
			return selected[i].RPWScore > selected[j].RPWScore
		}
		return selected[i].IFScore > selected[j].IFScore
	})
	if len(selected) > limit {
		selected = selected[:limit]
	}

	hotspots := make([]models.Hotspot, 0, len(selected))
	for _, a := range selected {
		hotspots = append(hotspots, models.Hotspot{
			Lat:  a.Y,
			Lng:  a.X,
			Risk: a.Risk,
			Rule: a.Rule,
		})
	}
	return hotspots
}

func latestDate(assessments []models.CellAssessment) time.Time {
	latest := assessments[0].Date
	for _, a := range assessments[1:] {
		if a.Date.After(latest) {
			latest = a.Date
		}
	}
	return latest
}

func meanOrNil(values []float64) *float64 {
	m := numeric.Mean(values)
	if !numeric.IsFinite(m) {
		return nil
	}
	return &m
}
