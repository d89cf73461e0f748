// Package promptref optionally rewrites a user prompt through the LLM gateway
// before generation. Refinement is best-effort: any failure leaves the raw
// prompt in play.
package promptref

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

// Refiner is the contract the orchestrator depends on.
type Refiner interface {
	Refine(ctx context.Context, prompt string) (string, error)
}

// Passthrough returns the prompt unchanged. Used when no gateway key is
// configured.
type Passthrough struct{}

// NewPassthrough constructs the no-op refiner.
func NewPassthrough() *Passthrough { return &Passthrough{} }

// Refine fulfils the Refiner interface.
func (p *Passthrough) Refine(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

var _ Refiner = (*Passthrough)(nil)

// Options configures the gateway-backed refiner.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Gateway refines prompts through the LLM gateway's completion endpoint.
type Gateway struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type refineRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Task   string `json:"task"`
}

type refineResponse struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// NewGateway constructs the client.
func NewGateway(opts Options) (*Gateway, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("promptref: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "prompt-refiner-v1"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Gateway{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Refine asks the gateway for an enriched version of the prompt. An empty
// answer falls back to the original text.
func (g *Gateway) Refine(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("promptref: prompt is required")
	}
	if g.apiKey == "" {
		return prompt, nil
	}
	body, err := json.Marshal(refineRequest{Model: g.model, Prompt: prompt, Task: "image-prompt"})
	if err != nil {
		return "", fmt.Errorf("promptref: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/refine", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("promptref: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &domain.TransportError{Op: "promptref: refine", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.TransportError{Op: "promptref: refine", Err: err}
	}
	if resp.StatusCode >= 300 {
		var detail refineResponse
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil && detail.Message != "" {
			return "", fmt.Errorf("promptref: %s", detail.Message)
		}
		return "", fmt.Errorf("promptref: status %d", resp.StatusCode)
	}
	var decoded refineResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("promptref: decode response: %w", err)
	}
	refined := strings.TrimSpace(decoded.Text)
	if refined == "" {
		g.logger.Debug().Msg("promptref: empty refinement, keeping raw prompt")
		return prompt, nil
	}
	return refined, nil
}

var _ Refiner = (*Gateway)(nil)
