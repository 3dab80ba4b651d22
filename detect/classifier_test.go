package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func servingStub(t *testing.T, model string, score func(req servingRequest) servingResponse) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models/"+model, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model_version_status":[{"state":"AVAILABLE"}]}`)
	})
	mux.HandleFunc("POST /v1/models/"+model+":predict", func(w http.ResponseWriter, r *http.Request) {
		var req servingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(score(req))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func stubPair() FeaturePair {
	return FeaturePair{
		Mel:    [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		Energy: make([]float64, NumStrings),
	}
}

func TestPingAvailableModel(t *testing.T) {
	srv := servingStub(t, "harp", func(req servingRequest) servingResponse { return servingResponse{} })
	c := NewServingClassifier(srv.URL, "harp")
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPingMissingModel(t *testing.T) {
	srv := servingStub(t, "harp", func(req servingRequest) servingResponse { return servingResponse{} })
	c := NewServingClassifier(srv.URL, "other")
	err := c.Ping(context.Background())
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("Ping error = %v, want ErrModelLoad", err)
	}
}

func TestPingUnreachableEndpoint(t *testing.T) {
	c := NewServingClassifier("http://127.0.0.1:1", "harp")
	if err := c.Ping(context.Background()); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("Ping error = %v, want ErrModelLoad", err)
	}
}

func TestScoreBatch(t *testing.T) {
	srv := servingStub(t, "harp", func(req servingRequest) servingResponse {
		preds := make([][]float64, len(req.Instances))
		for i := range preds {
			preds[i] = make([]float64, NumStrings)
			preds[i][i%NumStrings] = 0.9
		}
		return servingResponse{Predictions: preds}
	})

	c := NewServingClassifier(srv.URL, "harp")
	probs, err := c.Score(context.Background(), []FeaturePair{stubPair(), stubPair(), stubPair()})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(probs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(probs))
	}
	for i, p := range probs {
		if len(p) != NumStrings {
			t.Fatalf("vector %d has %d values", i, len(p))
		}
		if p[i%NumStrings] != 0.9 {
			t.Errorf("vector %d missing expected score", i)
		}
	}
}

func TestScoreEmptyBatch(t *testing.T) {
	c := NewServingClassifier("http://127.0.0.1:1", "harp")
	probs, err := c.Score(context.Background(), nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(probs) != 0 {
		t.Errorf("got %d vectors for empty batch", len(probs))
	}
}

func TestScoreBatchSizeMismatch(t *testing.T) {
	srv := servingStub(t, "harp", func(req servingRequest) servingResponse {
		return servingResponse{Predictions: [][]float64{make([]float64, NumStrings)}}
	})

	c := NewServingClassifier(srv.URL, "harp")
	if _, err := c.Score(context.Background(), []FeaturePair{stubPair(), stubPair()}); err == nil {
		t.Fatal("expected error on batch size mismatch")
	}
}

func TestScoreMalformedVectorWidth(t *testing.T) {
	srv := servingStub(t, "harp", func(req servingRequest) servingResponse {
		return servingResponse{Predictions: [][]float64{{0.1, 0.2}}}
	})

	c := NewServingClassifier(srv.URL, "harp")
	if _, err := c.Score(context.Background(), []FeaturePair{stubPair()}); err == nil {
		t.Fatal("expected error on wrong prediction width")
	}
}
