// Package cdn pushes local artifacts to the content-delivery service and
// returns the permanent public URL, tolerating transient failures with a small
// bounded retry.
package cdn

import (
	"bytes"
	"context"
	"encoding/base64"
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

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Options configures the uploader.
type Options struct {
	UploadURL   string
	APIKey      string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	MaxAttempts int
	BaseDelay   time.Duration
}

// Uploader performs the CDN upload call.
type Uploader struct {
	uploadURL   string
	apiKey      string
	httpClient  *http.Client
	logger      *infra.Logger
	maxAttempts int
	baseDelay   time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// Result is the CDN's answer for a stored file.
type Result struct {
	URL          string
	FileID       string
	ThumbnailURL string
}

type uploadRequest struct {
	File              string   `json:"file"`
	FileName          string   `json:"fileName"`
	Folder            string   `json:"folder"`
	Tags              []string `json:"tags"`
	UseUniqueFileName bool     `json:"useUniqueFileName"`
}

type uploadResponse struct {
	URL          string `json:"url"`
	FileID       string `json:"fileId"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Message      string `json:"message"`
}

// NewUploader constructs an Uploader with sane defaults.
func NewUploader(opts Options) (*Uploader, error) {
	uploadURL := strings.TrimSpace(opts.UploadURL)
	if uploadURL == "" {
		return nil, errors.New("cdn: upload url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Uploader{
		uploadURL:   uploadURL,
		apiKey:      strings.TrimSpace(opts.APIKey),
		httpClient:  httpClient,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepCtx,
	}, nil
}

// Upload pushes the bytes and returns the public URL. Up to maxAttempts tries
// with linear backoff (attempt N failing waits N x baseDelay); a 2xx response
// carrying an empty URL counts as a failure and is retried like a transport
// error. Exhaustion returns a *domain.UploadError wrapping the last failure;
// the orchestrator treats that as non-terminal.
func (u *Uploader) Upload(ctx context.Context, data []byte, fileName, folder string, tags []string) (*Result, error) {
	body, err := json.Marshal(uploadRequest{
		File:              base64.StdEncoding.EncodeToString(data),
		FileName:          fileName,
		Folder:            folder,
		Tags:              tags,
		UseUniqueFileName: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cdn: encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		res, err := u.attempt(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		u.logger.Warn().Err(err).Int("attempt", attempt).Msg("cdn: upload attempt failed")
		if attempt == u.maxAttempts {
			break
		}
		if sleepErr := u.sleep(ctx, time.Duration(attempt)*u.baseDelay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	return nil, &domain.UploadError{Attempts: u.maxAttempts, Err: lastErr}
}

func (u *Uploader) attempt(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cdn: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "cdn: upload", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: "cdn: upload", Err: err}
	}
	if resp.StatusCode >= 300 {
		var detail uploadResponse
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil && detail.Message != "" {
			return nil, fmt.Errorf("cdn: status %d: %s", resp.StatusCode, detail.Message)
		}
		return nil, fmt.Errorf("cdn: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("cdn: decode response: %w", err)
	}
	if strings.TrimSpace(decoded.URL) == "" {
		// A nominally successful response without a URL is useless; retried
		// like a transport failure.
		return nil, errors.New("cdn: response carries no url")
	}
	return &Result{
		URL:          decoded.URL,
		FileID:       decoded.FileID,
		ThumbnailURL: decoded.ThumbnailURL,
	}, nil
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
