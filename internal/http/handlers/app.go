package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oclite/studio/internal/auth"
	"github.com/oclite/studio/internal/cache"
	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/infra"
	"github.com/oclite/studio/internal/objectstore"
	"github.com/oclite/studio/internal/orchestrator"
	"github.com/oclite/studio/internal/ratelimit"
	"github.com/oclite/studio/internal/sharelink"
)

// Runner executes one generation pipeline run.
type Runner interface {
	Run(ctx context.Context, prompt, model string) (*orchestrator.Result, error)
}

// GalleryStore reads back a user's persisted artifacts.
type GalleryStore interface {
	List(ctx context.Context, ownerHash string, max int) ([]domain.ShareableArtifact, error)
	UserStats(ctx context.Context, ownerHash string) (objectstore.Stats, error)
}

// SessionClient is the slice of the auth client the handlers need.
type SessionClient interface {
	Silent(ctx context.Context) (*auth.Session, error)
	Interactive(ctx context.Context) (*auth.Session, error)
	SignOut(ctx context.Context) error
}

// App bundles the handler dependencies, injected once at startup.
type App struct {
	Runner   Runner
	Gallery  GalleryStore
	Sessions SessionClient
	Limiter  *ratelimit.Window
	Cache    *cache.Store
	Links    *sharelink.Builder
	Logger   infra.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, errorResponse{Error: msg})
}

// session resolves the current session or writes a 401 and returns nil.
func (a *App) session(w http.ResponseWriter, r *http.Request) *auth.Session {
	if a.Sessions == nil {
		a.jsonError(w, http.StatusUnauthorized, "sign-in required")
		return nil
	}
	sess, err := a.Sessions.Silent(r.Context())
	if err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: session lookup failed")
		a.jsonError(w, http.StatusBadGateway, "session service unavailable")
		return nil
	}
	if sess == nil {
		a.jsonError(w, http.StatusUnauthorized, "sign-in required")
		return nil
	}
	return sess
}
