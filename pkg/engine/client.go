// Package engine provides the public Go SDK for the extraction API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the public SDK client for a remote extraction API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates an extraction API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ExtractOptions mirror the server-side extraction options.
type ExtractOptions struct {
	EnableTables         bool
	EnableEntities       bool
	ConfidenceFloor      float64
	UseCache             bool
	EngineAllowlist      []string
	IncludeLowConfidence bool
}

// DefaultExtractOptions returns the options the server applies when
// none are given.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		EnableTables:    true,
		EnableEntities:  true,
		ConfidenceFloor: 0.6,
		UseCache:        true,
	}
}

// Extract runs a synchronous extraction against the API.
func (c *Client) Extract(ctx context.Context, content []byte, mediaType string, opts ExtractOptions) (*ExtractionResult, error) {
	endpoint := c.baseURL + "/v1/extract?" + optionsQuery(opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if mediaType != "" {
		req.Header.Set("Content-Type", mediaType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// JobStatus is the tracked state of an asynchronous job.
type JobStatus struct {
	JobID  string            `json:"job_id"`
	State  JobState          `json:"state"`
	Result *ExtractionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Submit enqueues an asynchronous extraction and returns the job ID.
func (c *Client) Submit(ctx context.Context, content []byte, mediaType string, opts ExtractOptions) (*JobStatus, error) {
	endpoint := c.baseURL + "/v1/jobs?" + optionsQuery(opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if mediaType != "" {
		req.Header.Set("Content-Type", mediaType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, decodeError(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &status, nil
}

// Status reports a job's state, including the result once terminal.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &status, nil
}

// Cancel requests cancellation of a running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Wait polls until the job reaches a terminal state.
func (c *Client) Wait(ctx context.Context, jobID string, pollInterval time.Duration) (*JobStatus, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.State.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func optionsQuery(opts ExtractOptions) string {
	q := url.Values{}
	q.Set("tables", strconv.FormatBool(opts.EnableTables))
	q.Set("entities", strconv.FormatBool(opts.EnableEntities))
	q.Set("cache", strconv.FormatBool(opts.UseCache))
	if opts.ConfidenceFloor > 0 {
		q.Set("confidence_floor", strconv.FormatFloat(opts.ConfidenceFloor, 'f', -1, 64))
	}
	if len(opts.EngineAllowlist) > 0 {
		q.Set("engines", strings.Join(opts.EngineAllowlist, ","))
	}
	if opts.IncludeLowConfidence {
		q.Set("include_low_confidence", "true")
	}
	return q.Encode()
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
