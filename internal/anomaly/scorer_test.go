package anomaly

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"farm-health-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelClient struct {
	gotRows     [][]float64
	predictions [][]float64
	err         error
}

func (f *fakeModelClient) Predict(_ context.Context, _ string, rows [][]float64) ([][]float64, error) {
	f.gotRows = rows
	return f.predictions, f.err
}

type fakeMeans struct {
	means map[string]float64
	err   error
}

func (f *fakeMeans) FeatureMeans(context.Context) (map[string]float64, error) {
	return f.means, f.err
}

func scorerRow(ndvi, ndmi float64) models.FeatureRow {
	return models.FeatureRow{
		Date:   time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC),
		Values: map[string]float64{"NDVI": ndvi, "NDMI": ndmi},
	}
}

func TestScore_NormalizesWithinRun(t *testing.T) {
	// Lower raw decision scores mean "more anomalous"; the normalized risk
	// must invert that ordering into [0,1].
	client := &fakeModelClient{predictions: [][]float64{{0.2}, {0.0}, {-0.1}}}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{}})

	rows := []models.FeatureRow{scorerRow(0.6, 0.3), scorerRow(0.5, 0.3), scorerRow(0.2, 0.1)}
	scores := scorer.Score(context.Background(), rows)

	require.Len(t, scores, 3)
	assert.Greater(t, scores[2], scores[1])
	assert.Greater(t, scores[1], scores[0])
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestScore_DropsAllMissingColumns(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0.1}, {0.2}}}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{}})

	rows := []models.FeatureRow{scorerRow(0.6, 0.3), scorerRow(0.5, 0.3)}
	scorer.Score(context.Background(), rows)

	// Only NDVI and NDMI have any finite value; every other feature
	// column is dropped before the model call.
	require.Len(t, client.gotRows, 2)
	assert.Len(t, client.gotRows[0], 2)
}

func TestScore_ImputesWithTrainingMeans(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0.1}, {0.2}}}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{"NDVI": 0.42}})

	rows := []models.FeatureRow{scorerRow(math.NaN(), 0.3), scorerRow(0.5, 0.3)}
	scorer.Score(context.Background(), rows)

	require.Len(t, client.gotRows, 2)
	assert.InDelta(t, 0.42, client.gotRows[0][0], 1e-9)
}

func TestScore_ImputesWithFarmMeanWhenTrainingMeanMissing(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0.1}, {0.2}, {0.3}}}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{}})

	rows := []models.FeatureRow{scorerRow(math.NaN(), 0.3), scorerRow(0.4, 0.3), scorerRow(0.6, 0.3)}
	scorer.Score(context.Background(), rows)

	require.Len(t, client.gotRows, 3)
	assert.InDelta(t, 0.5, client.gotRows[0][0], 1e-9)
}

func TestScore_ModelFailureLeavesZeros(t *testing.T) {
	client := &fakeModelClient{err: errors.New("connection refused")}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{}})

	scores := scorer.Score(context.Background(), []models.FeatureRow{scorerRow(0.6, 0.3)})
	assert.Equal(t, []float64{0}, scores)
}

func TestScore_WrongRowCountLeavesZeros(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0.1}}}
	scorer := NewScorer(client, &fakeMeans{means: map[string]float64{}})

	scores := scorer.Score(context.Background(), []models.FeatureRow{scorerRow(0.6, 0.3), scorerRow(0.5, 0.3)})
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestScore_MeansFailureStillScores(t *testing.T) {
	client := &fakeModelClient{predictions: [][]float64{{0.1}, {0.3}}}
	scorer := NewScorer(client, &fakeMeans{err: errors.New("object not found")})

	scores := scorer.Score(context.Background(), []models.FeatureRow{scorerRow(0.6, 0.3), scorerRow(0.5, 0.3)})
	require.Len(t, scores, 2)
	assert.Greater(t, scores[1], scores[0])
}

func TestScore_EmptyInput(t *testing.T) {
	scorer := NewScorer(&fakeModelClient{}, &fakeMeans{})
	assert.Empty(t, scorer.Score(context.Background(), nil))
}
