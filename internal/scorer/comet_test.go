package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewCometClient_Defaults(t *testing.T) {
	c := NewCometClient(Config{})

	if c.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("expected base URL %q, got %q", DefaultBaseURL, c.cfg.BaseURL)
	}
	if c.Model() != DefaultReferenceModel {
		t.Errorf("expected model %q, got %q", DefaultReferenceModel, c.Model())
	}
	if c.cfg.BatchSize != DefaultBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultBatchSize, c.cfg.BatchSize)
	}
	if c.Name() != "comet" {
		t.Errorf("expected name 'comet', got %q", c.Name())
	}
}

func TestCometClient_Score_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_secret" {
			t.Errorf("expected bearer token, got %q", got)
		}

		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.Model != DefaultQEModel {
			t.Errorf("expected model %q, got %q", DefaultQEModel, req.Model)
		}
		if req.BatchSize != 4 {
			t.Errorf("expected batch size 4, got %d", req.BatchSize)
		}
		if len(req.Data) != 2 || req.Data[1].Src != "World" || req.Data[1].Ref != "" {
			t.Errorf("unexpected data: %+v", req.Data)
		}

		json.NewEncoder(w).Encode(predictResponse{Scores: []float64{0.81, 0.42}, SystemScore: 0.615})
	}))
	defer server.Close()

	c := NewCometClient(Config{
		BaseURL:    server.URL + "/",
		ModelName:  DefaultQEModel,
		Credential: "hf_secret",
		BatchSize:  4,
	})

	scores, err := c.Score(context.Background(), []Triple{
		{Src: "Hello", MT: "Hola"},
		{Src: "World", MT: "Mundo"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.81 || scores[1] != 0.42 {
		t.Errorf("unexpected scores: %v", scores)
	}
}

func TestCometClient_Score_Empty(t *testing.T) {
	c := NewCometClient(Config{BaseURL: "http://127.0.0.1:1"})

	scores, err := c.Score(context.Background(), nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil scores, got %v", scores)
	}
}

func TestCometClient_Score_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Scores: []float64{0.5}})
	}))
	defer server.Close()

	c := NewCometClient(Config{BaseURL: server.URL})

	_, err := c.Score(context.Background(), []Triple{{Src: "a", MT: "b"}, {Src: "c", MT: "d"}})
	if err == nil {
		t.Error("expected error when score count does not match input")
	}
}

func TestCometClient_Score_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading"))
	}))
	defer server.Close()

	c := NewCometClient(Config{BaseURL: server.URL})

	_, err := c.Score(context.Background(), []Triple{{Src: "a", MT: "b", Ref: "c"}})
	if err == nil {
		t.Fatal("expected error for non-OK status")
	}
}

func TestCometClient_Score_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Error: "CUDA out of memory"})
	}))
	defer server.Close()

	c := NewCometClient(Config{BaseURL: server.URL})

	_, err := c.Score(context.Background(), []Triple{{Src: "a", MT: "b", Ref: "c"}})
	if err == nil {
		t.Fatal("expected error when server reports an error")
	}
}

func TestCometClient_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewCometClient(Config{BaseURL: server.URL})
	if err := c.IsAvailable(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCometClient_IsAvailable_Down(t *testing.T) {
	c := NewCometClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err := c.IsAvailable(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in     string
		want   Mode
		column string
		model  string
	}{
		{"", ModeReference, "comet_score", DefaultReferenceModel},
		{"reference", ModeReference, "comet_score", DefaultReferenceModel},
		{"QE", ModeQE, "comet_qe_score", DefaultQEModel},
		{"kiwi", ModeQE, "comet_qe_score", DefaultQEModel},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil {
			t.Errorf("ParseMode(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got.ScoreColumn() != tt.column {
			t.Errorf("ScoreColumn() = %q, want %q", got.ScoreColumn(), tt.column)
		}
		if got.DefaultModel() != tt.model {
			t.Errorf("DefaultModel() = %q, want %q", got.DefaultModel(), tt.model)
		}
	}

	if _, err := ParseMode("bleu"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
