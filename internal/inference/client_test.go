package inference

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"farm-health-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *Client {
	return NewClient(config.InferenceConfig{
		ServerURL:    serverURL,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
}

func TestPredict_SendsNullForMissingValues(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Instances [][]any `json:"instances"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions": [[0.1]]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	predictions, err := client.Predict(context.Background(), "anomaly", [][]float64{{0.5, math.NaN(), 0.3}})
	require.NoError(t, err)

	assert.Equal(t, "/v1/models/anomaly:predict", gotPath)
	require.Len(t, gotBody.Instances, 1)
	assert.Equal(t, 0.5, gotBody.Instances[0][0])
	assert.Nil(t, gotBody.Instances[0][1])
	assert.Equal(t, [][]float64{{0.1}}, predictions)
}

func TestPredict_RetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"predictions": [[1.0, 0.0, 0.0]]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	predictions, err := client.Predict(context.Background(), "forecast", [][]float64{{0.5}})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, predictions, 1)
}

func TestPredict_DoesNotRetryClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad feature vector", http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Predict(context.Background(), "anomaly", [][]float64{{0.5}})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "status 400")
}

func TestPredict_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "still down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Predict(context.Background(), "anomaly", [][]float64{{0.5}})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial call plus two retries
	assert.Contains(t, err.Error(), "predict call for model anomaly failed")
}

func TestPredict_ModelErrorIsNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"error": "unknown model"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Predict(context.Background(), "nope", [][]float64{{0.5}})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "unknown model")
}
