// Package services orchestrates the weekly analysis run: one call takes a
// farm from raw observations to a persisted health payload and alert set.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farm-health-service/internal/alerts"
	"farm-health-service/internal/config"
	"farm-health-service/internal/features"
	"farm-health-service/internal/models"
	"farm-health-service/internal/signals"

	"go.mongodb.org/mongo-driver/bson"
)

type observationSource interface {
	GetByFarmAndTimeRange(ctx context.Context, farmID string, from, to time.Time) ([]models.Observation, error)
	GetLatestObservationDate(ctx context.Context, farmID string) (time.Time, error)
}

type farmStore interface {
	GetFarm(ctx context.Context, farmID string) (*models.Farm, error)
	ListFarmIDs(ctx context.Context) ([]string, error)
	SetRunStatus(ctx context.Context, farmID, status, errMsg string) error
	SaveHealthResult(ctx context.Context, farmID string, result *models.HealthResult) error
	SaveAlerts(ctx context.Context, farmID string, bundle *models.AlertBundle) error
	GetHealthDocument(ctx context.Context, farmID string) (bson.M, error)
}

type anomalyScorer interface {
	Score(ctx context.Context, rows []models.FeatureRow) []float64
}

type riskClassifier interface {
	Classify(rows []models.FeatureRow, ifScores []float64) []models.CellAssessment
}

type forecaster interface {
	Predict(ctx context.Context, rows []models.FeatureRow, assessments []models.CellAssessment) (models.ForecastSummary, map[string]int, error)
}

type artifactVerifier interface {
	VerifyModels(ctx context.Context) error
}

// FarmHealthService runs the analysis pipeline end to end for one farm at
// a time. All pipeline stages are deterministic given the same inputs, so
// a re-run on unchanged data converges to the same persisted state.
type FarmHealthService struct {
	cfg          *config.FarmHealthConfig
	observations observationSource
	farms        farmStore
	artifacts    artifactVerifier
	builder      *features.Builder
	scorer       anomalyScorer
	classifier   riskClassifier
	forecaster   forecaster
	alertEngine  *alerts.Engine
}

func NewFarmHealthService(
	cfg *config.FarmHealthConfig,
	observations observationSource,
	farms farmStore,
	artifacts artifactVerifier,
	builder *features.Builder,
	scorer anomalyScorer,
	classifier riskClassifier,
	fc forecaster,
	alertEngine *alerts.Engine,
) *FarmHealthService {
	return &FarmHealthService{
		cfg:          cfg,
		observations: observations,
		farms:        farms,
		artifacts:    artifacts,
		builder:      builder,
		scorer:       scorer,
		classifier:   classifier,
		forecaster:   fc,
		alertEngine:  alertEngine,
	}
}

// AnalyzeFarm executes the full weekly pipeline for one farm. Any failure
// marks the farm document failed with the reason and returns the error;
// the previous health payload stays untouched in that case.
func (s *FarmHealthService) AnalyzeFarm(ctx context.Context, farmID string) error {
	started := time.Now()
	slog.Info("Analysis run started", "farm_id", farmID)

	if err := s.runPipeline(ctx, farmID); err != nil {
		if statusErr := s.farms.SetRunStatus(ctx, farmID, models.FarmStatusFailed, err.Error()); statusErr != nil {
			slog.Error("Failed to record run failure", "farm_id", farmID, "error", statusErr)
		}
		slog.Error("Analysis run failed", "farm_id", farmID, "error", err)
		return err
	}

	slog.Info("Analysis run finished", "farm_id", farmID, "duration", time.Since(started).Round(time.Millisecond))
	return nil
}

func (s *FarmHealthService) runPipeline(ctx context.Context, farmID string) error {
	// 1. Load the farm and validate its boundary before doing any work.
	farm, err := s.farms.GetFarm(ctx, farmID)
	if err != nil {
		return err
	}
	if _, err := farm.BoundaryGeometry(); err != nil {
		return err
	}

	if err := s.farms.SetRunStatus(ctx, farmID, models.FarmStatusRunning, ""); err != nil {
		return err
	}

	// 2. Confirm the model artifacts exist; a run without them cannot
	// produce comparable output.
	if err := s.artifacts.VerifyModels(ctx); err != nil {
		return err
	}

	// 3. Fetch the observation window ending at the latest available week.
	observations, err := s.fetchObservations(ctx, farmID)
	if err != nil {
		return err
	}

	// 4. Engineer the temporal features per cell.
	rows, err := s.builder.Build(observations)
	if err != nil {
		return fmt.Errorf("feature engineering failed for farm %s: %w", farmID, err)
	}

	// 5. Score anomalies; a degraded model never fails the run.
	ifScores := s.scorer.Score(ctx, rows)

	// 6. Classify every cell-week under run-adaptive thresholds.
	assessments := s.classifier.Classify(rows, ifScores)

	// 7. Reduce to farm-level signals.
	alertSignals := signals.BuildAlertSignals(assessments, s.cfg.PipelineCfg.HotspotLimit)
	currentHealth := signals.CurrentHealth(alertSignals)
	history := signals.IndicesHistory(rows, s.cfg.PipelineCfg.HistoryPoints)
	contextStats := signals.ContextStats(rows, assessments)

	// 8. Project next week; a structurally invalid model output is fatal.
	forecastSummary, forecastLookup, err := s.forecaster.Predict(ctx, rows, assessments)
	if err != nil {
		return fmt.Errorf("forecast failed for farm %s: %w", farmID, err)
	}

	result := &models.HealthResult{
		CurrentHealth:    currentHealth,
		ForecastNextWeek: forecastSummary,
		HealthMap:        signals.HealthMapPoints(assessments, forecastLookup),
		IndicesHistory:   history,
		AlertSignals:     alertSignals,
		ContextStats:     contextStats,
	}

	// 9. Persist the payload, then derive and persist the alert set.
	if err := s.farms.SaveHealthResult(ctx, farmID, result); err != nil {
		return err
	}

	bundle := s.alertEngine.Build(farmID, result)
	if err := s.farms.SaveAlerts(ctx, farmID, bundle); err != nil {
		return err
	}

	return s.farms.SetRunStatus(ctx, farmID, models.FarmStatusDone, "")
}

// fetchObservations loads the lookback window ending just after the
// farm's most recent observation week. A farm with no observations at
// all is a fatal, clearly worded condition.
func (s *FarmHealthService) fetchObservations(ctx context.Context, farmID string) ([]models.Observation, error) {
	latest, err := s.observations.GetLatestObservationDate(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if latest.IsZero() {
		return nil, fmt.Errorf("no observations found for farm %s; the imagery pipeline has not covered it yet", farmID)
	}

	to := latest.AddDate(0, 0, 1)
	from := latest.AddDate(0, 0, -7*s.cfg.PipelineCfg.LookbackWeeks)
	observations, err := s.observations.GetByFarmAndTimeRange(ctx, farmID, from, to)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("no observations found for farm %s in the last %d weeks", farmID, s.cfg.PipelineCfg.LookbackWeeks)
	}
	return observations, nil
}

// GetHealth returns the persisted health document for the read API.
func (s *FarmHealthService) GetHealth(ctx context.Context, farmID string) (bson.M, error) {
	return s.farms.GetHealthDocument(ctx, farmID)
}

// ListFarmIDs exposes the farm inventory for the scheduler.
func (s *FarmHealthService) ListFarmIDs(ctx context.Context) ([]string, error) {
	return s.farms.ListFarmIDs(ctx)
}
