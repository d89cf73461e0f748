package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/auth"
	"github.com/oclite/studio/internal/cache"
	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/objectstore"
	"github.com/oclite/studio/internal/orchestrator"
	"github.com/oclite/studio/internal/ratelimit"
)

type stubRunner struct {
	result *orchestrator.Result
	err    error
	prompt string
	model  string
}

func (s *stubRunner) Run(_ context.Context, prompt, model string) (*orchestrator.Result, error) {
	s.prompt, s.model = prompt, model
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubGallery struct {
	items []domain.ShareableArtifact
	stats objectstore.Stats
	owner string
}

func (s *stubGallery) List(_ context.Context, ownerHash string, _ int) ([]domain.ShareableArtifact, error) {
	s.owner = ownerHash
	return s.items, nil
}

func (s *stubGallery) UserStats(_ context.Context, ownerHash string) (objectstore.Stats, error) {
	s.owner = ownerHash
	return s.stats, nil
}

type stubSessions struct {
	session *auth.Session
}

func (s *stubSessions) Silent(context.Context) (*auth.Session, error)      { return s.session, nil }
func (s *stubSessions) Interactive(context.Context) (*auth.Session, error) { return s.session, nil }
func (s *stubSessions) SignOut(context.Context) error                      { s.session = nil; return nil }

func testApp() *App {
	return &App{Logger: zerolog.New(io.Discard)}
}

func TestGenerateSuccess(t *testing.T) {
	app := testApp()
	runner := &stubRunner{result: &orchestrator.Result{
		LocalPath:   "/tmp/fox.png",
		PreviewPath: "/tmp/fox_preview.png",
		ShareURL:    "https://oclite.site/share/AbCdEfGhIj",
	}}
	app.Runner = runner

	body := strings.NewReader(`{"prompt":"a red fox in snow","model":"sdxl-lightning"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", body)
	rec := httptest.NewRecorder()
	app.Generate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ShareURL != "https://oclite.site/share/AbCdEfGhIj" {
		t.Fatalf("unexpected share url: %s", resp.ShareURL)
	}
	if resp.PreviewPath != "/tmp/fox_preview.png" {
		t.Fatalf("unexpected preview path: %s", resp.PreviewPath)
	}
	if runner.prompt != "a red fox in snow" || runner.model != "sdxl-lightning" {
		t.Fatalf("runner got %q / %q", runner.prompt, runner.model)
	}
}

func TestGenerateDegradedStillOK(t *testing.T) {
	app := testApp()
	app.Runner = &stubRunner{result: &orchestrator.Result{
		LocalPath: "/tmp/fox.png",
		Notice:    "cloud upload is unavailable right now; your image is saved locally",
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", strings.NewReader(`{"prompt":"a fox"}`))
	rec := httptest.NewRecorder()
	app.Generate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("degraded run must still be 200, got %d", rec.Code)
	}
	var resp generateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Notice == "" || resp.ShareURL != "" {
		t.Fatalf("unexpected degraded response: %+v", resp)
	}
}

func TestGenerateValidation(t *testing.T) {
	app := testApp()
	app.Runner = &stubRunner{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", strings.NewReader(`{"prompt":"  "}`))
	rec := httptest.NewRecorder()
	app.Generate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty prompt, got %d", rec.Code)
	}
}

func TestGenerateDefaultsModel(t *testing.T) {
	app := testApp()
	runner := &stubRunner{result: &orchestrator.Result{LocalPath: "/tmp/x.png"}}
	app.Runner = runner

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", strings.NewReader(`{"prompt":"a fox"}`))
	rec := httptest.NewRecorder()
	app.Generate(rec, req)
	if runner.model != defaultModel {
		t.Fatalf("expected default model, got %q", runner.model)
	}
}

func TestGenerateErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"poll timeout", domain.ErrPollTimeout, http.StatusGatewayTimeout},
		{"canceled", domain.ErrCanceled, http.StatusRequestTimeout},
		{"backend", &domain.BackendError{Status: domain.JobStatusFailed, Reason: "nsfw"}, http.StatusUnprocessableEntity},
		{"transport", &domain.TransportError{Op: "submit", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := testApp()
			app.Runner = &stubRunner{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", strings.NewReader(`{"prompt":"a fox"}`))
			rec := httptest.NewRecorder()
			app.Generate(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestGalleryRequiresSession(t *testing.T) {
	app := testApp()
	app.Sessions = &stubSessions{}
	app.Gallery = &stubGallery{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil)
	rec := httptest.NewRecorder()
	app.ListGallery(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGalleryList(t *testing.T) {
	app := testApp()
	app.Sessions = &stubSessions{session: &auth.Session{AccountID: "acct-1"}}
	gallery := &stubGallery{items: []domain.ShareableArtifact{{
		StorageKey: "users/abc/20260828T120000Z_sdxl_fox",
		ShareID:    "AbCdEfGhIj",
		ShareURL:   "https://oclite.site/share/AbCdEfGhIj",
		CreatedAt:  time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		SizeBytes:  1024,
	}}}
	app.Gallery = gallery

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gallery?limit=5", nil)
	rec := httptest.NewRecorder()
	app.ListGallery(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gallery.owner != auth.HashOwner("acct-1") {
		t.Fatalf("gallery queried with %q, want owner hash", gallery.owner)
	}
	var resp galleryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ShareID != "AbCdEfGhIj" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestGalleryStats(t *testing.T) {
	app := testApp()
	app.Sessions = &stubSessions{session: &auth.Session{AccountID: "acct-1"}}
	app.Gallery = &stubGallery{stats: objectstore.Stats{Count: 3, TotalBytes: 4096}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gallery/stats", nil)
	rec := httptest.NewRecorder()
	app.GalleryStats(rec, req)

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 || resp.TotalBytes != 4096 {
		t.Fatalf("unexpected stats: %+v", resp)
	}
}

func TestLimitStatus(t *testing.T) {
	app := testApp()
	app.Sessions = &stubSessions{session: &auth.Session{AccountID: "acct-1"}}
	app.Limiter = ratelimit.New(10, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/limit", nil)
	rec := httptest.NewRecorder()
	app.Limit(rec, req)

	var resp limitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Remaining != 10 {
		t.Fatalf("expected full allowance, got %d", resp.Remaining)
	}
}

func TestCurrentSessionSignedOut(t *testing.T) {
	app := testApp()
	app.Sessions = &stubSessions{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	app.CurrentSession(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestSignOutDropsSession(t *testing.T) {
	app := testApp()
	sessions := &stubSessions{session: &auth.Session{AccountID: "acct-1"}}
	app.Sessions = sessions

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/signout", nil)
	rec := httptest.NewRecorder()
	app.SignOut(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if sessions.session != nil {
		t.Fatal("session should be dropped")
	}
}

func TestExportLocal(t *testing.T) {
	store, err := cache.New(cache.Options{Dir: t.TempDir(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("cache.New error: %v", err)
	}
	if _, err := store.Store([]byte("png-bytes"), "a fox"); err != nil {
		t.Fatalf("cache.Store error: %v", err)
	}
	app := testApp()
	app.Cache = store

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gallery/export", nil)
	rec := httptest.NewRecorder()
	app.ExportLocal(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Fatalf("unexpected content type: %s", got)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("expected one archived file, got %d", len(zr.File))
	}
}

func TestExportLocalEmpty(t *testing.T) {
	store, err := cache.New(cache.Options{Dir: t.TempDir(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("cache.New error: %v", err)
	}
	app := testApp()
	app.Cache = store

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gallery/export", nil)
	rec := httptest.NewRecorder()
	app.ExportLocal(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty cache, got %d", rec.Code)
	}
}
