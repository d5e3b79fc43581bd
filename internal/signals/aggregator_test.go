package signals

import (
	"math"
	"testing"
	"time"

	"farm-health-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func week(i int) time.Time {
	return time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
}

func assessment(x, y float64, date time.Time, risk models.RiskClass, rule models.RuleLabel, rpw float64) models.CellAssessment {
	flags := make(map[string]bool, len(models.FlagNames))
	for _, name := range models.FlagNames {
		flags[name] = false
	}
	return models.CellAssessment{
		X: x, Y: y, Date: date,
		Flags: flags, RPWScore: rpw,
		Risk: risk, Rule: rule,
	}
}

func TestBuildAlertSignals_TalliesLatestWeekOnly(t *testing.T) {
	assessments := []models.CellAssessment{
		assessment(46.1, 29.5, week(0), models.RiskCritical, models.RuleCriticalBaselineDrop, 0.9),
		assessment(46.1, 29.5, week(1), models.RiskHealthy, models.RuleHealthy, 0.0),
		assessment(46.2, 29.5, week(1), models.RiskMonitor, models.RuleMonitorRPWTail, 0.5),
		assessment(46.3, 29.5, week(1), models.RiskCritical, models.RuleCriticalRPWTail, 0.8),
	}
	assessments[2].Flags[models.FlagNDWILow] = true

	signals := BuildAlertSignals(assessments, 12)

	assert.Equal(t, week(1).Format("2006-01-02"), signals.LatestDate)
	assert.Equal(t, 3, signals.TotalPixelsLatest)
	assert.Equal(t, 1, signals.RiskCountsLatest["Healthy"])
	assert.Equal(t, 1, signals.RiskCountsLatest["Monitor"])
	assert.Equal(t, 1, signals.RiskCountsLatest["Critical"])
	assert.Equal(t, 1, signals.RuleCountsLatest["Critical_RPW_tail"])
	assert.Equal(t, 0, signals.RuleCountsLatest["Critical_baseline_drop"])
	assert.Equal(t, 1, signals.FlagCountsLatest[models.FlagNDWILow])
	assert.Equal(t, 0, signals.FlagCountsLatest[models.FlagNDRELow])
}

func TestBuildAlertSignals_EmptyInputHasInitializedMaps(t *testing.T) {
	signals := BuildAlertSignals(nil, 12)

	assert.Equal(t, 0, signals.TotalPixelsLatest)
	assert.Equal(t, 0, signals.RiskCountsLatest["Critical"])
	for _, name := range models.FlagNames {
		_, ok := signals.FlagCountsLatest[name]
		assert.True(t, ok, "flag %s missing from counts", name)
	}
	assert.NotNil(t, signals.Hotspots.Critical)
	assert.NotNil(t, signals.Hotspots.Stress)
}

func TestBuildAlertSignals_HotspotsRankedAndCapped(t *testing.T) {
	var assessments []models.CellAssessment
	for i := range 5 {
		a := assessment(46.0+float64(i)*0.01, 29.5, week(0),
			models.RiskCritical, models.RuleCriticalRPWTail, 0.5+float64(i)*0.1)
		assessments = append(assessments, a)
	}

	signals := BuildAlertSignals(assessments, 3)

	require.Len(t, signals.Hotspots.Critical, 3)
	assert.InDelta(t, 46.04, signals.Hotspots.Critical[0].Lng, 1e-9) // the top-scored cell
	assert.Equal(t, models.RuleCriticalRPWTail, signals.Hotspots.Critical[0].Rule)

	// The composite-tail rules also populate the stress focus.
	require.Len(t, signals.Hotspots.Stress, 3)
}

func TestCurrentHealth_Percentages(t *testing.T) {
	signals := models.AlertSignals{
		TotalPixelsLatest: 4,
		RiskCountsLatest:  map[string]int{"Healthy": 2, "Monitor": 1, "Critical": 1},
	}

	health := CurrentHealth(signals)
	assert.InDelta(t, 50.0, health.HealthyPct, 1e-9)
	assert.InDelta(t, 25.0, health.MonitorPct, 1e-9)
	assert.InDelta(t, 25.0, health.CriticalPct, 1e-9)
}

func TestCurrentHealth_EmptyWeekIsZero(t *testing.T) {
	health := CurrentHealth(models.AlertSignals{})
	assert.Equal(t, 0.0, health.HealthyPct)
}

func featureRow(x, y float64, date time.Time, ndvi, ndmi, ndre float64) models.FeatureRow {
	return models.FeatureRow{
		X: x, Y: y, Date: date,
		Values:  map[string]float64{"NDVI": ndvi, "NDMI": ndmi, "NDRE": ndre},
		Weather: map[string]float64{},
	}
}

func TestIndicesHistory_LastWeeksWithMeans(t *testing.T) {
	var rows []models.FeatureRow
	for i := range 7 {
		rows = append(rows, featureRow(46.1, 29.5, week(i), 0.5, 0.3, 0.4))
		rows = append(rows, featureRow(46.2, 29.5, week(i), 0.7, 0.3, 0.4))
	}

	history := IndicesHistory(rows, 5)
	require.Len(t, history, 5)
	assert.Equal(t, week(2).Format("2006-01-02"), history[0].Date)
	assert.Equal(t, week(6).Format("2006-01-02"), history[4].Date)
	require.NotNil(t, history[0].NDVI)
	assert.InDelta(t, 0.6, *history[0].NDVI, 1e-9)
}

func TestIndicesHistory_AllMissingWeekIsNil(t *testing.T) {
	rows := []models.FeatureRow{
		featureRow(46.1, 29.5, week(0), math.NaN(), 0.3, 0.4),
		featureRow(46.1, 29.5, week(1), 0.5, 0.3, 0.4),
	}

	history := IndicesHistory(rows, 5)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].NDVI)
	assert.NotNil(t, history[0].NDMI)
	assert.NotNil(t, history[1].NDVI)
}

func TestContextStats_TrailingWindowDeduplicatesWeather(t *testing.T) {
	var rows []models.FeatureRow
	var assessments []models.CellAssessment
	for i := range 6 {
		for cell := range 3 {
			row := featureRow(46.1+float64(cell)*0.01, 29.5, week(i), 0.5, 0.3, 0.4)
			row.Weather = map[string]float64{"precip_mm": 2.0, "t2m_mean": 30.0}
			rows = append(rows, row)
			assessments = append(assessments, assessment(row.X, row.Y, row.Date,
				models.RiskHealthy, models.RuleHealthy, 0.1))
		}
	}

	stats := ContextStats(rows, assessments)

	// 5 weeks fall inside the window (cutoff is latest minus 4 weeks,
	// inclusive); rain counts once per week, not once per cell.
	assert.InDelta(t, 10.0, stats.RainMM, 1e-9)
	assert.InDelta(t, 30.0, stats.TMean, 1e-9)
	assert.InDelta(t, 0.1, stats.RPWScoreMed, 1e-9)
}

func TestHealthMapPoints_LatestPerCellWithForecastCode(t *testing.T) {
	assessments := []models.CellAssessment{
		assessment(46.1234567, 29.5, week(0), models.RiskCritical, models.RuleCriticalRPWTail, 0.9),
		assessment(46.1234567, 29.5, week(1), models.RiskMonitor, models.RuleMonitorRPWTail, 0.5),
		assessment(46.2, 29.5, week(1), models.RiskHealthy, models.RuleHealthy, 0.0),
	}
	lng := RoundCoord(46.1234567)
	lookup := map[string]int{CoordKey(29.5, lng): 2}

	points := HealthMapPoints(assessments, lookup)
	require.Len(t, points, 2)

	first := points[0]
	assert.Equal(t, 29.5, first.Lat)
	assert.Equal(t, 46.123457, first.Lng) // rounded to 6 decimals
	assert.Equal(t, 1, first.S)           // latest week wins
	assert.Equal(t, 2, first.PS)

	assert.Equal(t, 0, points[1].S)
	assert.Equal(t, 0, points[1].PS)
}

func TestCoordKey_StableFormatting(t *testing.T) {
	assert.Equal(t, "29.5_46.123457", CoordKey(29.5, 46.123457))
	assert.Equal(t, CoordKey(29.5, RoundCoord(46.1234567)), CoordKey(29.5, 46.123457))
}
