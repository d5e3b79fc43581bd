// Package forecast merges the pre-trained next-week model's per-cell
// predictions into a farm-level forecast summary and a per-cell
// predicted-status lookup for the map view.
package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
	"farm-health-service/internal/signals"
)

// FeatureNames is the forecast model's input contract, in training order.
var FeatureNames = []string{
	"NDVI", "GNDVI", "NDRE", "NDRE740", "MTCI", "NDMI", "NDWI_Gao", "SIWSI1", "SIWSI2", "SRWI", "NMDI",
	"k_NDVI", "k_NDRE", "k_NDMI", "k_SIWSI1",
	"slope8_NDVI", "slope8_NDMI",
	"NDVI_drop_frac", "NDMI_drop_frac", "SIWSI1_drop_frac",
	"NDVI_drop_3w", "NDMI_drop_3w",
	"weekofyear", "month",
	"canopy_temp",
	"precip_mm", "t2m_mean", "t2m_max", "t2m_min", "ssrd_MJ", "wind10_ms", "vpd_kPa", "rh2m_mean",
	"RPW_score", "IF_score",
}

// ModelName is the serving name of the forecast artifact.
const ModelName = "forecast"

// ModelClient evaluates a named pre-trained model.
type ModelClient interface {
	Predict(ctx context.Context, model string, rows [][]float64) ([][]float64, error)
}

type Integrator struct {
	client ModelClient
}

func NewIntegrator(client ModelClient) *Integrator {
	return &Integrator{client: client}
}

// Predict evaluates the forecast model on the latest record of every cell
// and aggregates the predicted class codes and index deltas. assessments
// must be aligned with rows. A structurally wrong model output (not
// exactly one 3-value row per cell) is a fatal error for the run; an
// empty input yields an all-zero summary.
func (it *Integrator) Predict(ctx context.Context, rows []models.FeatureRow, assessments []models.CellAssessment) (models.ForecastSummary, map[string]int, error) {
	if len(rows) == 0 {
		return models.ForecastSummary{}, map[string]int{}, nil
	}

	latest := latestPerCell(rows)

	matrix := make([][]float64, len(latest))
	for i, idx := range latest {
		matrix[i] = featureVector(&rows[idx], &assessments[idx])
	}

	predictions, err := it.client.Predict(ctx, ModelName, matrix)
	if err != nil {
		return models.ForecastSummary{}, nil, fmt.Errorf("forecast model call failed: %w", err)
	}
	if len(predictions) != len(latest) {
		return models.ForecastSummary{}, nil, fmt.Errorf(
			"forecast model returned %d rows for %d cells", len(predictions), len(latest))
	}

	var healthy, monitor, critical int
	ndviDeltas := make([]float64, 0, len(predictions))
	ndmiDeltas := make([]float64, 0, len(predictions))
	lookup := make(map[string]int, len(predictions))

	for i, pred := range predictions {
		if len(pred) != 3 {
			return models.ForecastSummary{}, nil, fmt.Errorf(
				"forecast model returned a %d-value prediction row, want 3", len(pred))
		}

		code := pred[0]
		switch decodeClassCode(code) {
		case models.RiskCritical:
			critical++
		case models.RiskMonitor:
			monitor++
		default:
			healthy++
		}
		ndviDeltas = append(ndviDeltas, pred[1])
		ndmiDeltas = append(ndmiDeltas, pred[2])

		row := &rows[latest[i]]
		lat := signals.RoundCoord(row.Y)
		lng := signals.RoundCoord(row.X)
		lookup[signals.CoordKey(lat, lng)] = nextStatusCode(code)
	}

	total := float64(len(predictions))
	summary := models.ForecastSummary{
		HealthyPctNext:    float64(healthy) / total * 100.0,
		MonitorPctNext:    float64(monitor) / total * 100.0,
		CriticalPctNext:   float64(critical) / total * 100.0,
		NDVIDeltaNextMean: meanOrZero(ndviDeltas),
		NDMIDeltaNextMean: meanOrZero(ndmiDeltas),
	}

	slog.Debug("Forecast computed", "cells", len(predictions),
		"monitor_pct_next", summary.MonitorPctNext, "critical_pct_next", summary.CriticalPctNext)
	return summary, lookup, nil
}

func latestPerCell(rows []models.FeatureRow) []int {
	latest := map[models.CellKey]int{}
	order := []models.CellKey{}
	for i := range rows {
		key := rows[i].Cell()
		if prev, ok := latest[key]; !ok {
			latest[key] = i
			order = append(order, key)
		} else if rows[i].Date.After(rows[prev].Date) {
			latest[key] = i
		}
	}

	out := make([]int, 0, len(order))
	for _, key := range order {
		out = append(out, latest[key])
	}
	return out
}

// featureVector assembles the model input for one row in FeatureNames
// order. Missing values stay NaN; the serving layer imputes them.
func featureVector(row *models.FeatureRow, assessment *models.CellAssessment) []float64 {
	vector := make([]float64, len(FeatureNames))
	for j, name := range FeatureNames {
		switch name {
		case "k_NDVI":
			vector[j] = row.KScore("NDVI")
		case "k_NDRE":
			vector[j] = row.KScore("NDRE")
		case "k_NDMI":
			vector[j] = row.KScore("NDMI")
		case "k_SIWSI1":
			vector[j] = row.KScore("SIWSI1")
		case "slope8_NDVI":
			vector[j] = row.Slope("NDVI")
		case "slope8_NDMI":
			vector[j] = row.Slope("NDMI")
		case "NDVI_drop_frac":
			vector[j] = row.Drop("NDVI")
		case "NDMI_drop_frac":
			vector[j] = row.Drop("NDMI")
		case "SIWSI1_drop_frac":
			vector[j] = row.Drop("SIWSI1")
		case "NDVI_drop_3w":
			vector[j] = row.Drop3("NDVI")
		case "NDMI_drop_3w":
			vector[j] = row.Drop3("NDMI")
		case "weekofyear":
			vector[j] = float64(row.WeekOfYear)
		case "month":
			vector[j] = float64(row.Month)
		case "canopy_temp":
			vector[j] = row.CanopyTemp
		case "precip_mm", "t2m_mean", "t2m_max", "t2m_min", "ssrd_MJ", "wind10_ms", "vpd_kPa", "rh2m_mean":
			vector[j] = row.WeatherValue(name)
		case "RPW_score":
			vector[j] = assessment.RPWScore
		case "IF_score":
			vector[j] = assessment.IFScore
		default:
			vector[j] = row.Value(name)
		}
	}
	return vector
}

func decodeClassCode(code float64) models.RiskClass {
	switch {
	case code < 0.5:
		return models.RiskHealthy
	case code < 1.5:
		return models.RiskMonitor
	}
	return models.RiskCritical
}

func nextStatusCode(code float64) int {
	switch {
	case code >= 1.5:
		return 2
	case code >= 0.5:
		return 1
	}
	return 0
}

func meanOrZero(values []float64) float64 {
	m := numeric.Mean(values)
	if !numeric.IsFinite(m) {
		return 0
	}
	return m
}
