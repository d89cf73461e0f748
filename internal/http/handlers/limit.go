package handlers

import (
	"net/http"
	"time"
)

type limitResponse struct {
	Remaining      int     `json:"remaining"`
	ResetInSeconds float64 `json:"reset_in_seconds"`
}

// Limit reports the signed-in user's remaining cloud-operation allowance
// without consuming any of it.
func (a *App) Limit(w http.ResponseWriter, r *http.Request) {
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	if a.Limiter == nil {
		a.jsonError(w, http.StatusServiceUnavailable, "rate limiter not configured")
		return
	}
	remaining, resetIn := a.Limiter.Status(sess.AccountID)
	a.json(w, http.StatusOK, limitResponse{
		Remaining:      remaining,
		ResetInSeconds: resetIn.Round(time.Second).Seconds(),
	})
}
