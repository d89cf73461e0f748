// Package cache materializes downloaded generation results on local disk with
// a bounded lifetime. Every stored artifact is scheduled for deletion after a
// fixed TTL regardless of whether the user ever acts on it, and the whole
// directory is swept at startup and shutdown.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/infra"
	"github.com/oclite/studio/internal/slug"
)

const (
	// DefaultTTL bounds how long an unclaimed artifact may linger.
	DefaultTTL = 30 * time.Minute

	slugMaxLen = 40
)

// Store holds transient artifacts under a single directory. Filenames are
// unique (prompt slug + nanosecond timestamp) so concurrent runs never contend
// on the same path and no locking around the directory is needed.
type Store struct {
	dir    string
	ttl    time.Duration
	logger *infra.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Options configures a Store.
type Options struct {
	Dir    string
	TTL    time.Duration
	Logger *infra.Logger
}

// New creates the cache directory if needed and returns a Store rooted there.
func New(opts Options) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: ensure directory: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Store{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Dir returns the cache root.
func (s *Store) Dir() string { return s.dir }

// Store writes the artifact bytes under a unique generated name and schedules
// its TTL cleanup. The write goes through a temp file plus rename, and the
// final path is stat-verified before being handed out.
func (s *Store) Store(data []byte, promptHint string) (*domain.LocalArtifact, error) {
	now := time.Now()
	name := slug.Make(promptHint, slugMaxLen) + "_" + strconv.FormatInt(now.UnixNano(), 10) + ".png"
	path := filepath.Join(s.dir, name)

	// A sweep may have removed the directory since New.
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return nil, fmt.Errorf("cache: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("cache: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("cache: finalize artifact: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cache: verify artifact: %w", err)
	}

	s.scheduleCleanup(path)
	return &domain.LocalArtifact{
		Path:      path,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// Claim reads the artifact back for a save or preview action. It does not
// delete; deletion happens on explicit cleanup or TTL expiry.
func (s *Store) Claim(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: claim artifact: %w", err)
	}
	return data, nil
}

// Cleanup removes an artifact. Idempotent: a missing file is not an error.
func (s *Store) Cleanup(path string) error {
	s.cancelTimer(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: cleanup artifact: %w", err)
	}
	return nil
}

// Preview renders a downscaled copy of the artifact next to it for the editor
// preview surface. The preview shares the artifact's TTL cleanup.
func (s *Store) Preview(path string, maxDim int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cache: read artifact for preview: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("cache: decode artifact: %w", err)
	}
	if maxDim <= 0 {
		maxDim = 512
	}
	thumb := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	previewPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_preview.png"
	if err := saveAtomic(s.dir, previewPath, thumb); err != nil {
		return "", err
	}
	s.scheduleCleanup(previewPath)
	return previewPath, nil
}

// Sweep removes every cache entry and then the directory itself when empty.
// Best effort: failures are logged and never returned as fatal. Called at
// process startup (stale entries from a previous run) and shutdown.
func (s *Store) Sweep() {
	s.mu.Lock()
	for path, timer := range s.timers {
		timer.Stop()
		delete(s.timers, path)
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.dir).Msg("cache: sweep read failed")
		}
		return
	}
	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("cache: sweep remove failed")
		}
	}
	// Remove the directory only if the sweep emptied it.
	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) {
		s.logger.Debug().Err(err).Str("dir", s.dir).Msg("cache: directory kept")
	}
}

func (s *Store) scheduleCleanup(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[path]; ok {
		old.Stop()
	}
	s.timers[path] = time.AfterFunc(s.ttl, func() {
		if err := s.Cleanup(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("cache: ttl cleanup failed")
		}
	})
}

func (s *Store) cancelTimer(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[path]; ok {
		timer.Stop()
		delete(s.timers, path)
	}
}

func saveAtomic(dir, path string, img image.Image) error {
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: encode preview: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: finalize preview: %w", err)
	}
	return nil
}
