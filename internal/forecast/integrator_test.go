package forecast

import (
	"context"
	"testing"
	"time"

	"farm-health-service/internal/models"
	"farm-health-service/internal/signals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelClient struct {
	gotModel    string
	gotRows     [][]float64
	predictions [][]float64
	err         error
}

func (f *fakeModelClient) Predict(_ context.Context, model string, rows [][]float64) ([][]float64, error) {
	f.gotModel = model
	f.gotRows = rows
	return f.predictions, f.err
}

func week(i int) time.Time {
	return time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
}

func forecastRow(x, y float64, date time.Time) models.FeatureRow {
	return models.FeatureRow{
		X: x, Y: y, Date: date,
		WeekOfYear: 20, Month: 5,
		Values:  map[string]float64{"NDVI": 0.5, "NDMI": 0.3},
		Weather: map[string]float64{"precip_mm": 1.0},
	}
}

func fixtures() ([]models.FeatureRow, []models.CellAssessment) {
	rows := []models.FeatureRow{
		forecastRow(46.1, 29.5, week(0)),
		forecastRow(46.1, 29.5, week(1)),
		forecastRow(46.2, 29.5, week(0)),
		forecastRow(46.2, 29.5, week(1)),
	}
	assessments := make([]models.CellAssessment, len(rows))
	for i := range rows {
		assessments[i] = models.CellAssessment{
			X: rows[i].X, Y: rows[i].Y, Date: rows[i].Date,
			RPWScore: 0.1 * float64(i), IFScore: 0.05 * float64(i),
		}
	}
	return rows, assessments
}

func TestPredict_AggregatesLatestWeekPerCell(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{
		{2, -0.05, -0.02},
		{0, 0.01, 0.00},
	}}
	integrator := NewIntegrator(client)
	rows, assessments := fixtures()

	summary, lookup, err := integrator.Predict(context.Background(), rows, assessments)
	require.NoError(t, err)

	assert.Equal(t, ModelName, client.gotModel)
	require.Len(t, client.gotRows, 2) // one row per cell, latest week only
	assert.Len(t, client.gotRows[0], len(FeatureNames))

	assert.InDelta(t, 50.0, summary.HealthyPctNext, 1e-9)
	assert.InDelta(t, 0.0, summary.MonitorPctNext, 1e-9)
	assert.InDelta(t, 50.0, summary.CriticalPctNext, 1e-9)
	assert.InDelta(t, -0.02, summary.NDVIDeltaNextMean, 1e-9)
	assert.InDelta(t, -0.01, summary.NDMIDeltaNextMean, 1e-9)

	require.Len(t, lookup, 2)
	assert.Equal(t, 2, lookup[signals.CoordKey(29.5, 46.1)])
	assert.Equal(t, 0, lookup[signals.CoordKey(29.5, 46.2)])
}

func TestPredict_FeatureVectorCarriesScores(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{
		{0, 0, 0},
		{0, 0, 0},
	}}
	integrator := NewIntegrator(client)
	rows, assessments := fixtures()

	_, _, err := integrator.Predict(context.Background(), rows, assessments)
	require.NoError(t, err)

	// The first model input is the latest row of the first cell, index 1.
	vector := client.gotRows[0]
	n := len(FeatureNames)
	assert.InDelta(t, assessments[1].RPWScore, vector[n-2], 1e-9)
	assert.InDelta(t, assessments[1].IFScore, vector[n-1], 1e-9)
	assert.InDelta(t, 0.5, vector[0], 1e-9) // NDVI leads the vector
}

func TestPredict_WrongRowCountIsFatal(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0, 0, 0}}}
	integrator := NewIntegrator(client)
	rows, assessments := fixtures()

	_, _, err := integrator.Predict(context.Background(), rows, assessments)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 cells")
}

func TestPredict_WrongRowWidthIsFatal(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{
		{0, 0, 0},
		{1, 0.1},
	}}
	integrator := NewIntegrator(client)
	rows, assessments := fixtures()

	_, _, err := integrator.Predict(context.Background(), rows, assessments)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 3")
}

func TestPredict_EmptyInputYieldsZeroSummary(t *testing.T) {
	integrator := NewIntegrator(&fakeModelClient{})

	summary, lookup, err := integrator.Predict(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ForecastSummary{}, summary)
	assert.Empty(t, lookup)
}

func TestDecodeClassCode(t *testing.T) {
	assert.Equal(t, models.RiskHealthy, decodeClassCode(0.2))
	assert.Equal(t, models.RiskMonitor, decodeClassCode(1.0))
	assert.Equal(t, models.RiskCritical, decodeClassCode(1.8))

	assert.Equal(t, 0, nextStatusCode(0.4))
	assert.Equal(t, 1, nextStatusCode(0.6))
	assert.Equal(t, 2, nextStatusCode(2.0))
}
