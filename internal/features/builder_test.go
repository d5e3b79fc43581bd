package features

import (
	"math"
	"testing"
	"time"

	"farm-health-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekDate(week int) time.Time {
	return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week)
}

func ndviObs(x, y float64, week int, ndvi float64) models.Observation {
	return models.Observation{
		Site:       "farm-1",
		CellX:      x,
		CellY:      y,
		ObservedAt: weekDate(week),
		NDVI:       models.Float64Ptr(ndvi),
	}
}

func TestBuild_ErrorsOnEmptyInput(t *testing.T) {
	builder := NewBuilder(6)
	_, err := builder.Build(nil)
	assert.Error(t, err)
}

func TestBuild_GatesOnHistoryDepth(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 4 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}

	_, err := builder.Build(observations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "6 weeks")
}

func TestBuild_DropsAllMissingWeeksButKeepsHistoryCount(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 10 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}
	// A fully cloudy week carries no index at all.
	observations = append(observations, models.Observation{
		Site: "farm-1", CellX: 46.1, CellY: 29.5, ObservedAt: weekDate(10),
	})

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
	for _, row := range rows {
		assert.Equal(t, 10, row.HistoryWeeks)
	}
}

func TestBuild_GroupsCellsAndSortsByDate(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	// Interleave two cells in reverse week order.
	for week := 7; week >= 0; week-- {
		observations = append(observations, ndviObs(46.2, 29.5, week, 0.4))
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	require.Len(t, rows, 16)

	assert.Equal(t, 46.1, rows[0].X)
	assert.Equal(t, 46.2, rows[8].X)
	for i := 1; i < 8; i++ {
		assert.True(t, rows[i].Date.After(rows[i-1].Date))
	}
}

func TestKScore_FlatHistoryScoresZero(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 10 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	// A zero-variance window has no usable std, so the deviation score is
	// pinned to 0 rather than exploding.
	for _, row := range rows {
		assert.Equal(t, 0.0, row.KScore("NDVI"))
	}
}

func TestKScore_MissingValueStaysMissing(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 10 {
		obs := models.Observation{
			Site: "farm-1", CellX: 46.1, CellY: 29.5, ObservedAt: weekDate(week),
			NDMI: models.Float64Ptr(0.3),
		}
		if week != 9 {
			obs.NDVI = models.Float64Ptr(0.5)
		}
		observations = append(observations, obs)
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.True(t, math.IsNaN(rows[9].KScore("NDVI")))
	assert.False(t, math.IsNaN(rows[9].KScore("NDMI")))
}

func TestDropFraction_AgainstFullHistoryBaseline(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 9 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}
	observations = append(observations, ndviObs(46.1, 29.5, 9, 0.25))

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	require.Len(t, rows, 10)

	// Baseline is the 80th percentile of the whole series, 0.5 here.
	last := rows[9]
	assert.InDelta(t, 0.5, last.Drop("NDVI"), 1e-6)
	assert.InDelta(t, 0.0, rows[4].Drop("NDVI"), 1e-6)
}

func TestRollingSlope_NeedsFullWindow(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 10 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.3+0.01*float64(week)))
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)
	require.Len(t, rows, 10)

	for i := range 7 {
		assert.True(t, math.IsNaN(rows[i].Slope("NDVI")), "week %d should have no slope yet", i)
	}
	assert.InDelta(t, 0.01, rows[7].Slope("NDVI"), 1e-4)
	assert.InDelta(t, 0.01, rows[9].Slope("NDVI"), 1e-4)
}

func TestRollingMedian_NeedsMinimumObservations(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 8 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)

	for i := range 3 {
		assert.True(t, math.IsNaN(rows[i].RollingMedian("NDVI")))
	}
	assert.InDelta(t, 0.5, rows[3].RollingMedian("NDVI"), 1e-9)
}

func TestDrop3W_RollingMeanOfDropFraction(t *testing.T) {
	builder := NewBuilder(6)

	var observations []models.Observation
	for week := range 10 {
		observations = append(observations, ndviObs(46.1, 29.5, week, 0.5))
	}

	rows, err := builder.Build(observations)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(rows[0].Drop3("NDVI")))
	assert.InDelta(t, 0.0, rows[2].Drop3("NDVI"), 1e-9)
}
