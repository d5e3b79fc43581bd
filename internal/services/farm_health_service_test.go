package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"farm-health-service/internal/alerts"
	"farm-health-service/internal/config"
	"farm-health-service/internal/features"
	"farm-health-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// ============================================================================
// TEST FAKES
// ============================================================================

type fakeObservations struct {
	latest       time.Time
	observations []models.Observation
	err          error
}

func (f *fakeObservations) GetByFarmAndTimeRange(context.Context, string, time.Time, time.Time) ([]models.Observation, error) {
	return f.observations, f.err
}

func (f *fakeObservations) GetLatestObservationDate(context.Context, string) (time.Time, error) {
	return f.latest, f.err
}

type fakeFarms struct {
	farm        *models.Farm
	statuses    []string
	lastErrMsg  string
	savedResult *models.HealthResult
	savedBundle *models.AlertBundle
}

func (f *fakeFarms) GetFarm(_ context.Context, farmID string) (*models.Farm, error) {
	if f.farm == nil {
		return nil, fmt.Errorf("farm %s not found", farmID)
	}
	return f.farm, nil
}

func (f *fakeFarms) ListFarmIDs(context.Context) ([]string, error) {
	return []string{f.farm.ID}, nil
}

func (f *fakeFarms) SetRunStatus(_ context.Context, _, status, errMsg string) error {
	f.statuses = append(f.statuses, status)
	f.lastErrMsg = errMsg
	return nil
}

func (f *fakeFarms) SaveHealthResult(_ context.Context, _ string, result *models.HealthResult) error {
	f.savedResult = result
	return nil
}

func (f *fakeFarms) SaveAlerts(_ context.Context, _ string, bundle *models.AlertBundle) error {
	f.savedBundle = bundle
	return nil
}

func (f *fakeFarms) GetHealthDocument(context.Context, string) (bson.M, error) {
	return bson.M{}, nil
}

type fakeArtifacts struct{ err error }

func (f *fakeArtifacts) VerifyModels(context.Context) error { return f.err }

type fakeScorer struct{}

func (fakeScorer) Score(_ context.Context, rows []models.FeatureRow) []float64 {
	return make([]float64, len(rows))
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(rows []models.FeatureRow, _ []float64) []models.CellAssessment {
	out := make([]models.CellAssessment, len(rows))
	for i := range rows {
		flags := make(map[string]bool, len(models.FlagNames))
		for _, name := range models.FlagNames {
			flags[name] = false
		}
		out[i] = models.CellAssessment{
			X: rows[i].X, Y: rows[i].Y, Date: rows[i].Date,
			Flags: flags, Risk: models.RiskHealthy, Rule: models.RuleHealthy,
		}
	}
	return out
}

type fakeForecaster struct{ err error }

func (f *fakeForecaster) Predict(context.Context, []models.FeatureRow, []models.CellAssessment) (models.ForecastSummary, map[string]int, error) {
	if f.err != nil {
		return models.ForecastSummary{}, nil, f.err
	}
	return models.ForecastSummary{HealthyPctNext: 100}, map[string]int{}, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func testConfig() *config.FarmHealthConfig {
	return &config.FarmHealthConfig{
		PipelineCfg: config.PipelineConfig{
			LookbackWeeks:   52,
			MinHistoryWeeks: 6,
			HotspotLimit:    12,
			HistoryPoints:   5,
		},
		AlertCfg: config.AlertConfig{
			CriticalPctCutoff: 2.0, MonitorPctCutoff: 35.0,
			OverallDriverCutoff: 0.35, WhyDriverCutoff: 0.40, RecommendDriverCutoff: 0.45,
			MaxAlerts: 2, MaxRecommendations: 6,
		},
	}
}

func testFarm() *models.Farm {
	return &models.Farm{
		ID: "farm-1",
		Boundary: []models.LatLng{
			{Lat: 29.5, Lng: 46.1}, {Lat: 29.5, Lng: 46.2},
			{Lat: 29.6, Lng: 46.2}, {Lat: 29.6, Lng: 46.1},
		},
	}
}

func weeklyObservations(weeks int) ([]models.Observation, time.Time) {
	start := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	var out []models.Observation
	var latest time.Time
	for week := range weeks {
		latest = start.AddDate(0, 0, 7*week)
		out = append(out, models.Observation{
			Site: "farm-1", CellX: 46.15, CellY: 29.55, ObservedAt: latest,
			NDVI: models.Float64Ptr(0.5), NDMI: models.Float64Ptr(0.3),
		})
	}
	return out, latest
}

func newTestService(observations *fakeObservations, farms *fakeFarms, artifacts *fakeArtifacts, fc *fakeForecaster) *FarmHealthService {
	cfg := testConfig()
	return NewFarmHealthService(
		cfg, observations, farms, artifacts,
		features.NewBuilder(cfg.PipelineCfg.MinHistoryWeeks),
		fakeScorer{}, fakeClassifier{}, fc,
		alerts.NewEngine(cfg.AlertCfg),
	)
}

// ============================================================================
// TESTS
// ============================================================================

func TestAnalyzeFarm_FullRunPersistsResultAndAlerts(t *testing.T) {
	obsData, latest := weeklyObservations(8)
	observations := &fakeObservations{latest: latest, observations: obsData}
	farms := &fakeFarms{farm: testFarm()}

	service := newTestService(observations, farms, &fakeArtifacts{}, &fakeForecaster{})
	err := service.AnalyzeFarm(context.Background(), "farm-1")
	require.NoError(t, err)

	assert.Equal(t, []string{models.FarmStatusRunning, models.FarmStatusDone}, farms.statuses)
	require.NotNil(t, farms.savedResult)
	assert.Equal(t, 1, farms.savedResult.AlertSignals.TotalPixelsLatest)
	assert.InDelta(t, 100.0, farms.savedResult.CurrentHealth.HealthyPct, 1e-9)
	require.NotNil(t, farms.savedBundle)
	assert.Empty(t, farms.savedBundle.Alerts)
}

func TestAnalyzeFarm_NoObservationsIsFatal(t *testing.T) {
	observations := &fakeObservations{} // zero latest date: farm never imaged
	farms := &fakeFarms{farm: testFarm()}

	service := newTestService(observations, farms, &fakeArtifacts{}, &fakeForecaster{})
	err := service.AnalyzeFarm(context.Background(), "farm-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no observations found for farm farm-1")
	require.NotEmpty(t, farms.statuses)
	assert.Equal(t, models.FarmStatusFailed, farms.statuses[len(farms.statuses)-1])
	assert.Contains(t, farms.lastErrMsg, "no observations")
	assert.Nil(t, farms.savedResult)
}

func TestAnalyzeFarm_InvalidBoundaryIsFatal(t *testing.T) {
	farm := testFarm()
	farm.Boundary = farm.Boundary[:2]
	farms := &fakeFarms{farm: farm}

	service := newTestService(&fakeObservations{}, farms, &fakeArtifacts{}, &fakeForecaster{})
	err := service.AnalyzeFarm(context.Background(), "farm-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than 3 points")
	assert.Equal(t, []string{models.FarmStatusFailed}, farms.statuses)
}

func TestAnalyzeFarm_MissingFarmIsFatal(t *testing.T) {
	farms := &fakeFarms{}

	service := newTestService(&fakeObservations{}, farms, &fakeArtifacts{}, &fakeForecaster{})
	err := service.AnalyzeFarm(context.Background(), "farm-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAnalyzeFarm_MissingModelArtifactIsFatal(t *testing.T) {
	obsData, latest := weeklyObservations(8)
	observations := &fakeObservations{latest: latest, observations: obsData}
	farms := &fakeFarms{farm: testFarm()}
	artifacts := &fakeArtifacts{err: errors.New("model artifact not found: model-artifacts/anomaly/isolation_forest.joblib")}

	service := newTestService(observations, farms, artifacts, &fakeForecaster{})
	err := service.AnalyzeFarm(context.Background(), "farm-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model artifact not found")
	assert.Equal(t, models.FarmStatusFailed, farms.statuses[len(farms.statuses)-1])
	assert.Nil(t, farms.savedResult)
}

func TestAnalyzeFarm_ForecastFailureIsFatal(t *testing.T) {
	obsData, latest := weeklyObservations(8)
	observations := &fakeObservations{latest: latest, observations: obsData}
	farms := &fakeFarms{farm: testFarm()}

	service := newTestService(observations, farms, &fakeArtifacts{},
		&fakeForecaster{err: errors.New("forecast model returned 1 rows for 2 cells")})
	err := service.AnalyzeFarm(context.Background(), "farm-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast failed for farm farm-1")
	assert.Equal(t, models.FarmStatusFailed, farms.statuses[len(farms.statuses)-1])
	// The previous payload is never clobbered by a failed run.
	assert.Nil(t, farms.savedResult)
}
