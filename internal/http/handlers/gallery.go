package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/oclite/studio/internal/auth"
	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/pkg/zip"
)

const defaultGalleryLimit = 50

type galleryItem struct {
	StorageKey string    `json:"storage_key"`
	ShareID    string    `json:"share_id"`
	ShareURL   string    `json:"share_url"`
	CDNURL     string    `json:"cdn_url,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`
}

type galleryResponse struct {
	Items []galleryItem `json:"items"`
}

type statsResponse struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// ListGallery returns the signed-in user's persisted artifacts, newest first.
func (a *App) ListGallery(w http.ResponseWriter, r *http.Request) {
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	if a.Gallery == nil {
		a.jsonError(w, http.StatusServiceUnavailable, "gallery storage not configured")
		return
	}
	max := defaultGalleryLimit
	v := r.URL.Query().Get("max")
	if v == "" {
		v = r.URL.Query().Get("limit")
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		max = n
	}
	artifacts, err := a.Gallery.List(r.Context(), auth.HashOwner(sess.AccountID), max)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: gallery list failed")
		a.jsonError(w, http.StatusBadGateway, "gallery unavailable")
		return
	}
	items := make([]galleryItem, 0, len(artifacts))
	for _, art := range artifacts {
		items = append(items, a.toGalleryItem(art))
	}
	a.json(w, http.StatusOK, galleryResponse{Items: items})
}

func (a *App) toGalleryItem(art domain.ShareableArtifact) galleryItem {
	shareURL := art.ShareURL
	if shareURL == "" && art.ShareID != "" && a.Links != nil {
		shareURL = a.Links.URL(art.ShareID)
	}
	return galleryItem{
		StorageKey: art.StorageKey,
		ShareID:    art.ShareID,
		ShareURL:   shareURL,
		CDNURL:     art.CDNURL,
		Prompt:     art.OriginalPrompt,
		Model:      art.Model,
		CreatedAt:  art.CreatedAt,
		SizeBytes:  art.SizeBytes,
	}
}

// GalleryStats summarizes the signed-in user's stored artifacts.
func (a *App) GalleryStats(w http.ResponseWriter, r *http.Request) {
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	if a.Gallery == nil {
		a.jsonError(w, http.StatusServiceUnavailable, "gallery storage not configured")
		return
	}
	stats, err := a.Gallery.UserStats(r.Context(), auth.HashOwner(sess.AccountID))
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: gallery stats failed")
		a.jsonError(w, http.StatusBadGateway, "gallery unavailable")
		return
	}
	a.json(w, http.StatusOK, statsResponse{Count: stats.Count, TotalBytes: stats.TotalBytes})
}

// ExportLocal streams the still-cached local artifacts as a zip archive, so a
// user can save their recent work before the cache TTL claims it.
func (a *App) ExportLocal(w http.ResponseWriter, r *http.Request) {
	if a.Cache == nil {
		a.jsonError(w, http.StatusServiceUnavailable, "local cache not configured")
		return
	}
	entries, err := os.ReadDir(a.Cache.Dir())
	if err != nil {
		a.jsonError(w, http.StatusNotFound, "no local artifacts")
		return
	}
	var assets []zip.Asset
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".png" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.Cache.Dir(), entry.Name()))
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{Filename: entry.Name(), Data: data})
	}
	if len(assets) == 0 {
		a.jsonError(w, http.StatusNotFound, "no local artifacts")
		return
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="studio-export.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
