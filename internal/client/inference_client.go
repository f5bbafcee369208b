package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VideoGenerator defines the interface to the external generation service
type VideoGenerator interface {
	Generate(ctx context.Context, req *GenerateVideoRequest) (*GenerateVideoResponse, error)
	HealthCheck(ctx context.Context) error
}

// InferenceClient implements VideoGenerator for the GPU inference service
type InferenceClient struct {
	httpClient *http.Client
	baseURL    string
}

// GenerateVideoRequest represents the request to the inference service
type GenerateVideoRequest struct {
	JobID          string  `json:"job_id"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	DurationSec    int     `json:"duration_sec,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	OutputKey      string  `json:"output_key"`
}

// GenerateVideoResponse represents the response from the inference service
type GenerateVideoResponse struct {
	OutputKey   string  `json:"output_key"`
	DurationSec float64 `json:"duration_sec"`
	Frames      int     `json:"frames"`
}

// NewInferenceClient creates a client for the inference service. An empty
// baseURL leaves the client unconfigured; callers use a mock result instead.
func NewInferenceClient(baseURL string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &InferenceClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// IsConfigured returns true if the client has a service endpoint
func (c *InferenceClient) IsConfigured() bool {
	return c.baseURL != ""
}

// Generate runs text-to-video generation and blocks until the service
// finishes or the context is cancelled.
func (c *InferenceClient) Generate(ctx context.Context, req *GenerateVideoRequest) (*GenerateVideoResponse, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("inference service not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return nil, fmt.Errorf("inference service error (%d): %s", resp.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	var result GenerateVideoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// HealthCheck pings the inference service
func (c *InferenceClient) HealthCheck(ctx context.Context) error {
	if !c.IsConfigured() {
		return fmt.Errorf("inference service not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
