package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/oclite/studio/internal/domain"
)

const defaultModel = "sdxl-lightning"

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type generateResponse struct {
	LocalPath   string `json:"local_path"`
	PreviewPath string `json:"preview_path,omitempty"`
	ShareURL    string `json:"share_url,omitempty"`
	Notice      string `json:"notice,omitempty"`
}

// Generate runs the full pipeline for one prompt. A degraded run (local-only
// artifact) is still a 200; only a run with no artifact at all is an error.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		a.jsonError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Model = strings.TrimSpace(req.Model); req.Model == "" {
		req.Model = defaultModel
	}

	res, err := a.Runner.Run(r.Context(), req.Prompt, req.Model)
	if err != nil {
		a.Logger.Error().Err(err).Str("model", req.Model).Msg("handlers: generation run failed")
		a.jsonError(w, statusForRunError(err), err.Error())
		return
	}
	a.json(w, http.StatusOK, generateResponse{
		LocalPath:   res.LocalPath,
		PreviewPath: res.PreviewPath,
		ShareURL:    res.ShareURL,
		Notice:      res.Notice,
	})
}

func statusForRunError(err error) int {
	var backendErr *domain.BackendError
	switch {
	case errors.Is(err, domain.ErrPollTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCanceled):
		return http.StatusRequestTimeout
	case errors.As(err, &backendErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
