package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultRequestTimeout = 120 * time.Second

// HTTPClient talks to the hosted text-generation service.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient builds a client for the generation endpoint. The API key is
// required; its absence is a structured initialization error.
func NewHTTPClient(baseURL, apiKey string) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}, nil
}

type generateResponse struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
	TokensUsed int    `json:"tokens_used"`
}

func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &UpstreamModelError{Op: "encode", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, &UpstreamModelError{Op: "request", Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamModelError{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamModelError{Op: "call", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &UpstreamModelError{Op: "decode", Err: err}
	}

	return &GenerateResult{
		Text:       body.Text,
		Truncated:  body.StopReason == "max_tokens",
		TokensUsed: body.TokensUsed,
	}, nil
}
