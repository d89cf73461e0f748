package handlers

import (
	"errors"
	"net/http"

	"github.com/oclite/studio/internal/domain"
)

type sessionView struct {
	AccountID    string `json:"account_id"`
	AccountLabel string `json:"account_label,omitempty"`
}

// CurrentSession reports the signed-in account, 204 when signed out.
func (a *App) CurrentSession(w http.ResponseWriter, r *http.Request) {
	if a.Sessions == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sess, err := a.Sessions.Silent(r.Context())
	if err != nil {
		a.jsonError(w, http.StatusBadGateway, "session service unavailable")
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	a.json(w, http.StatusOK, sessionView{AccountID: sess.AccountID, AccountLabel: sess.AccountLabel})
}

// SignIn runs the interactive sign-in flow against the auth service.
func (a *App) SignIn(w http.ResponseWriter, r *http.Request) {
	if a.Sessions == nil {
		a.jsonError(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	sess, err := a.Sessions.Interactive(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrAuthRequired) {
			a.jsonError(w, http.StatusUnauthorized, "sign-in was not completed")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: interactive sign-in failed")
		a.jsonError(w, http.StatusBadGateway, "auth service unavailable")
		return
	}
	a.json(w, http.StatusOK, sessionView{AccountID: sess.AccountID, AccountLabel: sess.AccountLabel})
}

// SignOut drops the server-side session and the local cache of it.
func (a *App) SignOut(w http.ResponseWriter, r *http.Request) {
	if a.Sessions == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := a.Sessions.SignOut(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: sign-out failed")
		a.jsonError(w, http.StatusBadGateway, "auth service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
