package cdn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oclite/studio/internal/domain"
)

func newTestUploader(t *testing.T, url string) (*Uploader, *[]time.Duration) {
	t.Helper()
	u, err := NewUploader(Options{UploadURL: url, APIKey: "cdn-key", BaseDelay: time.Second})
	require.NoError(t, err)
	delays := &[]time.Duration{}
	u.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return u, delays
}

func TestUploadSuccess(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer cdn-key", r.Header.Get("Authorization"))
		var req uploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, base64.StdEncoding.EncodeToString(payload), req.File)
		require.Equal(t, "fox.png", req.FileName)
		require.Equal(t, "generations", req.Folder)
		require.True(t, req.UseUniqueFileName)
		_ = json.NewEncoder(w).Encode(uploadResponse{URL: "https://cdn.example/abc.png", FileID: "f-1"})
	}))
	defer ts.Close()

	u, delays := newTestUploader(t, ts.URL)
	res, err := u.Upload(context.Background(), payload, "fox.png", "generations", []string{"generated"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/abc.png", res.URL)
	require.Empty(t, *delays, "no backoff expected on first-attempt success")
}

func TestUploadLinearBackoffShape(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(uploadResponse{URL: "https://cdn.example/retry.png"})
	}))
	defer ts.Close()

	u, delays := newTestUploader(t, ts.URL)
	res, err := u.Upload(context.Background(), []byte("data"), "f.png", "dir", nil)
	require.NoError(t, err, "attempt 3 succeeds and its result is returned")
	require.Equal(t, "https://cdn.example/retry.png", res.URL)
	require.Equal(t, int32(3), attempts.Load())

	// Exactly two waits, growing linearly.
	require.Len(t, *delays, 2)
	require.Equal(t, 1*time.Second, (*delays)[0])
	require.Equal(t, 2*time.Second, (*delays)[1])
	require.Greater(t, (*delays)[1], (*delays)[0])
}

func TestUploadEmptyURLRetried(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(uploadResponse{URL: ""})
			return
		}
		_ = json.NewEncoder(w).Encode(uploadResponse{URL: "https://cdn.example/ok.png"})
	}))
	defer ts.Close()

	u, _ := newTestUploader(t, ts.URL)
	res, err := u.Upload(context.Background(), []byte("data"), "f.png", "dir", nil)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/ok.png", res.URL)
	require.Equal(t, int32(2), attempts.Load(), "empty url must be retried like a transport error")
}

func TestUploadExhaustionReturnsTypedError(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	u, delays := newTestUploader(t, ts.URL)
	_, err := u.Upload(context.Background(), []byte("data"), "f.png", "dir", nil)

	var uploadErr *domain.UploadError
	require.ErrorAs(t, err, &uploadErr)
	require.Equal(t, defaultMaxAttempts, uploadErr.Attempts)
	require.Equal(t, int32(defaultMaxAttempts), attempts.Load())
	require.Len(t, *delays, defaultMaxAttempts-1, "no wait after the final attempt")
}

func TestUploadCancellationStopsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	u, err := NewUploader(Options{UploadURL: ts.URL, BaseDelay: time.Second})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	u.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err = u.Upload(ctx, []byte("data"), "f.png", "dir", nil)
	var uploadErr *domain.UploadError
	require.ErrorAs(t, err, &uploadErr)
	require.True(t, errors.Is(uploadErr.Err, context.Canceled))
}
