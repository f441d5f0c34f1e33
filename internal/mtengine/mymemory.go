package mtengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const myMemoryBaseURL = "https://api.mymemory.translated.net"

type MyMemoryEngine struct {
	baseURL string
	email   string
	client  *http.Client
}

func NewMyMemoryEngine(cfg Config) *MyMemoryEngine {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = myMemoryBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MyMemoryEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   cfg.Email,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *MyMemoryEngine) Name() string {
	return "mymemory"
}

// Translate sends one request per text; the API has no batch endpoint.
func (e *MyMemoryEngine) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if targetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}
	if sourceLang == "" || sourceLang == "auto" {
		sourceLang = "en"
	}
	langPair := fmt.Sprintf("%s|%s", normalizeCode(sourceLang), normalizeCode(targetLang))

	out := make([]string, len(texts))
	for i, text := range texts {
		translated, err := e.translateOne(ctx, text, langPair)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i+1, err)
		}
		out[i] = translated
	}
	return out, nil
}

func (e *MyMemoryEngine) translateOne(ctx context.Context, text, langPair string) (string, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("langpair", langPair)
	if e.email != "" {
		params.Set("de", e.email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/get?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mymemory returned status %d", resp.StatusCode)
	}

	var mymemResp struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus  json.Number `json:"responseStatus"`
		ResponseDetails string      `json:"responseDetails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mymemResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if mymemResp.ResponseStatus.String() != "200" {
		return "", fmt.Errorf("API error: %s (%s)", mymemResp.ResponseDetails, mymemResp.ResponseStatus)
	}
	return mymemResp.ResponseData.TranslatedText, nil
}

func (e *MyMemoryEngine) Close() error {
	return nil
}
