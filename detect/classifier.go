package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harplab/stringtrace/logging"
)

// ErrModelLoad reports that the classifier artifact is missing or unusable.
// Jobs fail on it before any onset processing begins.
var ErrModelLoad = errors.New("classifier model unavailable")

// Classifier scores batched FeaturePairs, returning one probability vector of
// NumStrings values in [0, 1] per pair. Implementations must be data-parallel
// across the batch axis: batch size never changes per-onset results.
type Classifier interface {
	// Ping verifies the model artifact is loaded and servable
	Ping(ctx context.Context) error
	// Score returns probabilities[i][s] for pair i and string s+1
	Score(ctx context.Context, batch []FeaturePair) ([][]float64, error)
}

// ServingClassifier talks to a TensorFlow Serving REST endpoint hosting the
// pretrained multi-label string classifier.
type ServingClassifier struct {
	baseURL   string
	modelName string
	client    *http.Client
	logger    logging.Logger
}

// NewServingClassifier creates a client for the given serving endpoint and
// model name.
func NewServingClassifier(baseURL, modelName string) *ServingClassifier {
	return &ServingClassifier{
		baseURL:   baseURL,
		modelName: modelName,
		client:    &http.Client{Timeout: 120 * time.Second},
		logger: logging.WithFields(logging.Fields{
			"component": "classifier",
			"model":     modelName,
		}),
	}
}

type servingInstance struct {
	Mel [][]float64 `json:"mel"`
	Vec []float64   `json:"vec"`
}

type servingRequest struct {
	Instances []servingInstance `json:"instances"`
}

type servingResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Ping checks the model status endpoint
func (c *ServingClassifier) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", c.baseURL, c.modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model status returned %s", ErrModelLoad, resp.Status)
	}
	return nil
}

// Score sends the whole batch in a single predict call
func (c *ServingClassifier) Score(ctx context.Context, batch []FeaturePair) ([][]float64, error) {
	if len(batch) == 0 {
		return [][]float64{}, nil
	}

	instances := make([]servingInstance, len(batch))
	for i, pair := range batch {
		instances[i] = servingInstance{Mel: pair.Mel, Vec: pair.Energy}
	}

	body, err := json.Marshal(servingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict call: %w", err)
	}
	defer resp.Body.Close()

	var parsed servingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return nil, fmt.Errorf("predict returned %s: %s", resp.Status, parsed.Error)
		}
		return nil, fmt.Errorf("predict returned %s", resp.Status)
	}

	if len(parsed.Predictions) != len(batch) {
		return nil, fmt.Errorf("predict returned %d vectors for %d instances", len(parsed.Predictions), len(batch))
	}
	for i, probs := range parsed.Predictions {
		if len(probs) != NumStrings {
			return nil, fmt.Errorf("prediction %d has %d values, want %d", i, len(probs), NumStrings)
		}
	}

	c.logger.Debug("Classifier batch scored", logging.Fields{
		"batch_size": len(batch),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	return parsed.Predictions, nil
}
