// Package genclient talks to the image inference backend: it submits a
// generation job, polls it to a terminal state, and downloads the result.
package genclient

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

	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/infra"
)

// ErrMissingAPIKey indicates the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genclient: api key is required")

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPolls        = 30
	defaultDownloadTimeout = 30 * time.Second
	maxDownloadBytes       = 32 * 1024 * 1024
)

// Options configures the inference backend client.
type Options struct {
	BaseURL         string
	APIKey          string
	DisableSafety   bool
	HTTPClient      *http.Client
	Logger          *infra.Logger
	PollInterval    time.Duration
	MaxPolls        int
	DownloadTimeout time.Duration
}

// Client performs HTTP calls against the inference backend's job API.
type Client struct {
	baseURL         string
	apiKey          string
	disableSafety   bool
	httpClient      *http.Client
	logger          *infra.Logger
	pollInterval    time.Duration
	maxPolls        int
	downloadTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// Request captures the inputs for one generation.
type Request struct {
	Model  string
	Prompt string
}

// Submission is the outcome of a submit call: either an immediate terminal
// result (OutputURL set) or a job handle to poll (JobID set).
type Submission struct {
	JobID     string
	OutputURL string
}

// JobState is a single observation of a job's status.
type JobState struct {
	Status    domain.JobStatus
	OutputURL string
	Reason    string
}

type generateRequest struct {
	Model         string `json:"model"`
	Prompt        string `json:"prompt"`
	DisableSafety bool   `json:"disable_safety"`
}

type jobResponse struct {
	Status string   `json:"status"`
	ID     string   `json:"id,omitempty"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("genclient: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(opts.APIKey),
		disableSafety:   opts.DisableSafety,
		httpClient:      httpClient,
		logger:          logger,
		pollInterval:    pollInterval,
		maxPolls:        maxPolls,
		downloadTimeout: downloadTimeout,
		sleep:           sleepCtx,
	}, nil
}

// Submit sends the generation request. Some backends answer synchronously: a
// terminal succeeded response short-circuits polling entirely.
func (c *Client) Submit(ctx context.Context, req Request) (*Submission, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrCanceled
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("genclient: prompt is required")
	}
	body, err := json.Marshal(generateRequest{
		Model:         req.Model,
		Prompt:        prompt,
		DisableSafety: c.disableSafety,
	})
	if err != nil {
		return nil, fmt.Errorf("genclient: encode request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body), "submit")
	if err != nil {
		return nil, err
	}

	status, known := domain.ParseJobStatus(resp.Status)
	if !known {
		return nil, fmt.Errorf("genclient: backend returned unknown status %q", resp.Status)
	}
	switch status {
	case domain.JobStatusSucceeded:
		url := firstOutput(resp.Output)
		if url == "" {
			return nil, fmt.Errorf("genclient: succeeded response carries no output")
		}
		c.logger.Debug().Str("model", req.Model).Msg("genclient: immediate result")
		return &Submission{OutputURL: url}, nil
	case domain.JobStatusFailed, domain.JobStatusCanceled:
		return nil, &domain.BackendError{Status: status, Reason: resp.Error}
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("genclient: non-terminal response carries no job id")
	}
	c.logger.Debug().Str("job_id", resp.ID).Str("status", string(status)).Msg("genclient: job submitted")
	return &Submission{JobID: resp.ID}, nil
}

// Poll performs a single status check for the job.
func (c *Client) Poll(ctx context.Context, jobID string) (*JobState, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil, "poll")
	if err != nil {
		return nil, err
	}
	status, known := domain.ParseJobStatus(resp.Status)
	if !known {
		return nil, fmt.Errorf("genclient: backend returned unknown status %q", resp.Status)
	}
	return &JobState{
		Status:    status,
		OutputURL: firstOutput(resp.Output),
		Reason:    resp.Error,
	}, nil
}

// Await drives the polling loop: fixed interval, bounded attempts. It returns
// the output URL on success, domain.ErrPollTimeout once the attempt budget is
// exhausted, a *domain.BackendError on a terminal failure, and
// domain.ErrCanceled as soon as cancellation is observed. It never aborts the
// remote job; the backend run is bounded and left to finish on its own.
func (c *Client) Await(ctx context.Context, jobID string) (string, error) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		if ctx.Err() != nil {
			return "", domain.ErrCanceled
		}
		state, err := c.Poll(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch state.Status {
		case domain.JobStatusSucceeded:
			if state.OutputURL == "" {
				return "", fmt.Errorf("genclient: succeeded job %s carries no output", jobID)
			}
			return state.OutputURL, nil
		case domain.JobStatusFailed, domain.JobStatusCanceled:
			return "", &domain.BackendError{Status: state.Status, Reason: state.Reason}
		}
		if attempt == c.maxPolls {
			break
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", domain.ErrCanceled
		}
	}
	c.logger.Warn().Str("job_id", jobID).Int("attempts", c.maxPolls).Msg("genclient: poll budget exhausted")
	return "", domain.ErrPollTimeout
}

// Download fetches the generated image bytes. Single attempt with its own
// timeout; the output URL is not retried.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("genclient: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, domain.ErrCanceled
		}
		return nil, &domain.TransportError{Op: "genclient: download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &domain.TransportError{Op: "genclient: download", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	limited := io.LimitReader(resp.Body, maxDownloadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &domain.TransportError{Op: "genclient: download", Err: err}
	}
	if int64(len(data)) > maxDownloadBytes {
		return nil, fmt.Errorf("genclient: image too large (>%d bytes)", maxDownloadBytes)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, op string) (*jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("genclient: build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCanceled
		}
		return nil, &domain.TransportError{Op: "genclient: " + op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: "genclient: " + op, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Op:  "genclient: " + op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}
	var decoded jobResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genclient: decode %s response: %w", op, err)
	}
	return &decoded, nil
}

func firstOutput(output []string) string {
	for _, url := range output {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
