package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"farm-health-service/internal/config"
)

// Client calls the model serving sidecar that evaluates the pre-trained
// anomaly and forecast artifacts. Requests are retried with linear backoff
// at this boundary only; the scoring code above never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

func NewClient(cfg config.InferenceConfig) *Client {
	return &Client{
		baseURL:    cfg.ServerURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
}

type predictRequest struct {
	Instances [][]any `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Predict sends feature rows to the named model and returns one prediction
// row per input row. NaN feature values are sent as JSON null; the server
// applies its own imputation for them.
func (c *Client) Predict(ctx context.Context, model string, rows [][]float64) ([][]float64, error) {
	payload := predictRequest{Instances: make([][]any, len(rows))}
	for i, row := range rows {
		encoded := make([]any, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				encoded[j] = nil
			} else {
				encoded[j] = v
			}
		}
		payload.Instances[i] = encoded
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request for model %s: %w", model, err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, model)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
			slog.Warn("Retrying model predict call", "model", model, "attempt", attempt, "error", lastErr)
		}

		predictions, retryable, err := c.predictOnce(ctx, url, body)
		if err == nil {
			return predictions, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("predict call for model %s failed: %w", model, lastErr)
}

func (c *Client) predictOnce(ctx context.Context, url string, body []byte) ([][]float64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded predictResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, false, fmt.Errorf("model error: %s", decoded.Error)
	}

	return decoded.Predictions, false, nil
}
