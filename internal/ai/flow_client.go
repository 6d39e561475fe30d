package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIKeyHeader carries the AI service key on every flow request.
const APIKeyHeader = "x-genkit-api-key"

// maxErrorBody bounds how much of a failed response body ends up in errors.
const maxErrorBody = 512

// FlowClient calls flows over HTTP: POST {baseURL}/api/flow/{flow} with body
// {"input": ...}, answering {"output": ...}.
type FlowClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFlowClient creates a flow client. A zero timeout leaves the HTTP client
// without a deadline; callers are expected to pass one.
func NewFlowClient(baseURL, apiKey string, timeout time.Duration) *FlowClient {
	return &FlowClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RunFlow implements FlowRunner. Every failure is a *TransportError.
func (c *FlowClient) RunFlow(ctx context.Context, flow string, input, output any) error {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return &TransportError{Flow: flow, Err: fmt.Errorf("encode input: %w", err)}
	}

	url := fmt.Sprintf("%s/api/flow/%s", c.baseURL, flow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Flow: flow, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Flow: flow, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Flow:       flow,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var envelope struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &TransportError{Flow: flow, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(envelope.Output) == 0 || string(envelope.Output) == "null" {
		return &TransportError{Flow: flow, StatusCode: resp.StatusCode, Err: errors.New("response has no output")}
	}
	if err := json.Unmarshal(envelope.Output, output); err != nil {
		return &TransportError{Flow: flow, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode output: %w", err)}
	}

	return nil
}

var _ FlowRunner = (*FlowClient)(nil)
