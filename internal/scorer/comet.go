package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "http://localhost:8765"

// CometClient talks to a COMET inference server that wraps
// comet.load_from_checkpoint(...).predict(...).
type CometClient struct {
	cfg    Config
	client *http.Client
}

func NewCometClient(cfg Config) *CometClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultReferenceModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &CometClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *CometClient) Name() string {
	return "comet"
}

func (c *CometClient) Model() string {
	return c.cfg.ModelName
}

type predictRequest struct {
	Model     string   `json:"model"`
	BatchSize int      `json:"batch_size"`
	GPUs      int      `json:"gpus"`
	Data      []Triple `json:"data"`
}

type predictResponse struct {
	Scores      []float64 `json:"scores"`
	SystemScore float64   `json:"system_score"`
	Error       string    `json:"error,omitempty"`
}

func (c *CometClient) Score(ctx context.Context, triples []Triple) ([]float64, error) {
	if len(triples) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(predictRequest{
		Model:     c.cfg.ModelName,
		BatchSize: c.cfg.BatchSize,
		GPUs:      c.cfg.GPUs,
		Data:      triples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("scorer error: %s", out.Error)
	}
	if len(out.Scores) != len(triples) {
		return nil, fmt.Errorf("scorer returned %d scores for %d segments", len(out.Scores), len(triples))
	}
	return out.Scores, nil
}

func (c *CometClient) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("COMET server not available: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("COMET server returned status %d", resp.StatusCode)
	}
	return nil
}

// authorize forwards the Hugging Face token so the server can fetch gated
// checkpoints such as CometKiwi.
func (c *CometClient) authorize(req *http.Request) {
	if c.cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
	}
}
