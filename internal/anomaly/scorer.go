// Package anomaly scores engineered feature rows against the pre-trained
// outlier-detection model and normalizes the result to a per-run [0,1]
// risk scale.
package anomaly

import (
	"context"
	"log/slog"
	"math"

	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
)

// FeatureNames is the model's input contract: raw indices plus deviation
// scores and trend slopes, in training order.
var FeatureNames = []string{
	"NDVI", "NDRE", "NDMI", "NMDI", "NDWI_Gao", "SIWSI1",
	"k_NDVI", "k_NDMI", "k_SIWSI1", "slope8_NDVI", "slope8_NDMI",
}

const normEpsilon = 1e-6

// ModelClient evaluates a named pre-trained model.
type ModelClient interface {
	Predict(ctx context.Context, model string, rows [][]float64) ([][]float64, error)
}

// MeansSource supplies the training-time feature means companion artifact.
type MeansSource interface {
	FeatureMeans(ctx context.Context) (map[string]float64, error)
}

// ModelName is the serving name of the anomaly artifact.
const ModelName = "anomaly"

type Scorer struct {
	client ModelClient
	means  MeansSource
}

func NewScorer(client ModelClient, means MeansSource) *Scorer {
	return &Scorer{client: client, means: means}
}

// Score returns one anomaly risk value per row, aligned by index. The raw
// decision scores are min-max normalized within this run, so 1 always
// means "most anomalous relative to this farm's other cells this run".
// A failed model call leaves every score at 0 and never fails the run.
func (s *Scorer) Score(ctx context.Context, rows []models.FeatureRow) []float64 {
	scores := make([]float64, len(rows))
	if len(rows) == 0 {
		return scores
	}

	trainingMeans, err := s.means.FeatureMeans(ctx)
	if err != nil {
		slog.Warn("Feature means unavailable, imputing with farm means only", "error", err)
		trainingMeans = map[string]float64{}
	}

	matrix, columns := buildMatrix(rows)
	if len(columns) == 0 {
		slog.Warn("No usable anomaly features, leaving all scores at 0")
		return scores
	}
	impute(matrix, columns, trainingMeans)

	predictions, err := s.client.Predict(ctx, ModelName, matrix)
	if err != nil {
		slog.Warn("Anomaly model call failed, leaving all scores at 0", "error", err)
		return scores
	}
	if len(predictions) != len(rows) {
		slog.Warn("Anomaly model returned unexpected row count, leaving all scores at 0",
			"expected", len(rows), "got", len(predictions))
		return scores
	}

	raw := make([]float64, len(rows))
	for i, pred := range predictions {
		if len(pred) == 0 {
			slog.Warn("Anomaly model returned an empty prediction row, leaving all scores at 0", "row", i)
			return scores
		}
		raw[i] = pred[0]
	}

	mn, mx := numeric.MinMax(raw)
	for i, v := range raw {
		if !numeric.IsFinite(v) {
			scores[i] = 0
			continue
		}
		scores[i] = 1 - (v-mn)/(mx-mn+normEpsilon)
	}
	return scores
}

// buildMatrix assembles the feature matrix restricted to columns that have
// at least one finite value on this farm, preserving FeatureNames order.
func buildMatrix(rows []models.FeatureRow) ([][]float64, []string) {
	full := make(map[string][]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		column := make([]float64, len(rows))
		for i := range rows {
			column[i] = featureValue(&rows[i], name)
		}
		full[name] = column
	}

	var columns []string
	for _, name := range FeatureNames {
		if len(numeric.Finite(full[name])) > 0 {
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		return nil, nil
	}

	matrix := make([][]float64, len(rows))
	for i := range rows {
		vector := make([]float64, len(columns))
		for j, name := range columns {
			vector[j] = full[name][i]
		}
		matrix[i] = vector
	}
	return matrix, columns
}

// impute fills missing values with the training-time mean of the feature,
// falling back to the farm's own column mean for features the training set
// never saw.
func impute(matrix [][]float64, columns []string, trainingMeans map[string]float64) {
	fills := make([]float64, len(columns))
	for j, name := range columns {
		if mean, ok := trainingMeans[name]; ok {
			fills[j] = mean
			continue
		}
		column := make([]float64, len(matrix))
		for i := range matrix {
			column[i] = matrix[i][j]
		}
		fills[j] = numeric.Mean(column)
	}

	for i := range matrix {
		for j := range matrix[i] {
			if math.IsNaN(matrix[i][j]) || math.IsInf(matrix[i][j], 0) {
				matrix[i][j] = fills[j]
			}
		}
	}
}

func featureValue(row *models.FeatureRow, name string) float64 {
	switch name {
	case "k_NDVI":
		return row.KScore("NDVI")
	case "k_NDMI":
		return row.KScore("NDMI")
	case "k_SIWSI1":
		return row.KScore("SIWSI1")
	case "slope8_NDVI":
		return row.Slope("NDVI")
	case "slope8_NDMI":
		return row.Slope("NDMI")
	}
	return row.Value(name)
}
