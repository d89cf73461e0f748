// Package orchestrator sequences one user-initiated generation:
// refine -> generate -> download -> cdn upload -> object-store write. Mandatory
// stages fail the run; cloud stages degrade it to a local-only result so the
// user always keeps their image.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/auth"
	"github.com/oclite/studio/internal/cdn"
	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/genclient"
	"github.com/oclite/studio/internal/infra"
	"github.com/oclite/studio/internal/objectstore"
	"github.com/oclite/studio/internal/promptref"
	"github.com/oclite/studio/internal/sharelink"
	"github.com/oclite/studio/internal/slug"
	"github.com/oclite/studio/internal/telemetry"
)

// Generator is the slice of the generation client the orchestrator drives.
type Generator interface {
	Submit(ctx context.Context, req genclient.Request) (*genclient.Submission, error)
	Await(ctx context.Context, jobID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// ArtifactCache stores downloaded bytes locally and renders previews.
type ArtifactCache interface {
	Store(data []byte, promptHint string) (*domain.LocalArtifact, error)
	Preview(path string, maxDim int) (string, error)
}

// Uploader pushes bytes to the CDN.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, folder string, tags []string) (*cdn.Result, error)
}

// ObjectWriter persists the shareable record.
type ObjectWriter interface {
	Write(ctx context.Context, key string, data []byte, ownerHash string, meta objectstore.Meta) error
}

// SessionSource reports the current user session, nil when signed out.
type SessionSource interface {
	Silent(ctx context.Context) (*auth.Session, error)
}

// Limiter is the client-side advisory throttle.
type Limiter interface {
	Check(userID string) (bool, time.Duration)
}

// Result is the outcome of a run. LocalPath is always set on success; ShareURL
// is empty on a degraded result and Notice then explains why. PreviewPath is
// best-effort and may be empty when the artifact could not be decoded.
type Result struct {
	LocalPath   string
	PreviewPath string
	ShareURL    string
	Notice      string
}

// Options wires the orchestrator's collaborators. Everything is injected at
// construction; the orchestrator holds no global state.
type Options struct {
	Generator Generator
	Cache     ArtifactCache
	Uploader  Uploader
	Store     ObjectWriter
	Sessions  SessionSource
	Limiter   Limiter
	Refiner   promptref.Refiner
	Links     *sharelink.Builder
	CDNFolder string
	Logger    *infra.Logger
	Events    func(domain.Event)
}

// Orchestrator runs the generation pipeline for single requests. Safe for
// concurrent use: runs share no mutable state beyond the limiter and the cache
// directory, both safe by construction.
type Orchestrator struct {
	gen       Generator
	cache     ArtifactCache
	uploader  Uploader
	store     ObjectWriter
	sessions  SessionSource
	limiter   Limiter
	refiner   promptref.Refiner
	links     *sharelink.Builder
	cdnFolder string
	logger    *infra.Logger
	emit      func(domain.Event)
}

// New validates the required collaborators and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("orchestrator: cache is required")
	}
	if opts.Links == nil {
		return nil, errors.New("orchestrator: share-link builder is required")
	}
	folder := opts.CDNFolder
	if folder == "" {
		folder = "generations"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	emit := opts.Events
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Orchestrator{
		gen:       opts.Generator,
		cache:     opts.Cache,
		uploader:  opts.Uploader,
		store:     opts.Store,
		sessions:  opts.Sessions,
		limiter:   opts.Limiter,
		refiner:   opts.Refiner,
		links:     opts.Links,
		cdnFolder: folder,
		logger:    logger,
		emit:      emit,
	}, nil
}

const previewMaxDim = 512

const (
	noticeSignIn      = "sign in to share your creations; this one stayed local"
	noticeUploadDown  = "cloud upload is unavailable right now; your image is saved locally"
	noticeShareBroken = "sharing is unavailable this session; your image is saved locally"
	noticeCanceled    = "run canceled before upload; your image is saved locally"
)

// Run executes the pipeline for one prompt+model pair.
func (o *Orchestrator) Run(ctx context.Context, prompt, model string) (*Result, error) {
	telemetry.RunsStarted.Inc()

	prompt = o.refine(ctx, prompt)

	outputURL, err := o.generate(ctx, prompt, model)
	if err != nil {
		telemetry.RunsFailed.Inc()
		return nil, err
	}

	if ctx.Err() != nil {
		telemetry.RunsFailed.Inc()
		return nil, domain.ErrCanceled
	}

	artifact, err := o.download(ctx, outputURL, prompt)
	if err != nil {
		telemetry.RunsFailed.Inc()
		return nil, err
	}
	result := &Result{LocalPath: artifact.Path}
	if preview, err := o.cache.Preview(artifact.Path, previewMaxDim); err == nil {
		result.PreviewPath = preview
	} else {
		o.logger.Debug().Err(err).Msg("orchestrator: preview skipped")
	}

	// Cloud stages from here on only ever degrade the result.
	if ctx.Err() != nil {
		o.skipCloud(result, noticeCanceled, "canceled")
		return result, nil
	}

	session, err := o.session(ctx)
	if err != nil || session == nil {
		o.skipCloud(result, noticeSignIn, "no session")
		return result, nil
	}

	if o.limiter != nil {
		if allowed, wait := o.limiter.Check(session.AccountID); !allowed {
			telemetry.RateLimitRejects.Inc()
			o.skipCloud(result, (&domain.RateLimitError{RetryAfter: wait}).Error(), "rate limited")
			return result, nil
		}
	}

	upload, ok := o.upload(ctx, artifact)
	if !ok {
		result.Notice = noticeUploadDown
		o.emit(domain.Event{Stage: domain.StagePersist, Outcome: domain.OutcomeSkipped, Detail: "no public url to persist"})
		telemetry.RunsDegraded.Inc()
		return result, nil
	}

	shareURL, ok := o.persist(ctx, artifact, upload, prompt, model, auth.HashOwner(session.AccountID))
	if !ok {
		result.Notice = noticeShareBroken
		telemetry.RunsDegraded.Inc()
		return result, nil
	}
	result.ShareURL = shareURL
	telemetry.RunsSucceeded.Inc()
	return result, nil
}

// refine is best-effort: any failure keeps the raw prompt.
func (o *Orchestrator) refine(ctx context.Context, prompt string) string {
	if o.refiner == nil {
		return prompt
	}
	done := o.stage(domain.StageRefine)
	refined, err := o.refiner.Refine(ctx, prompt)
	if err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: prompt refinement failed, using raw prompt")
		done(domain.OutcomeFailed, err.Error())
		return prompt
	}
	done(domain.OutcomeSucceeded, "")
	return refined
}

func (o *Orchestrator) generate(ctx context.Context, prompt, model string) (string, error) {
	done := o.stage(domain.StageGenerate)
	sub, err := o.gen.Submit(ctx, genclient.Request{Model: model, Prompt: prompt})
	if err != nil {
		done(domain.OutcomeFailed, err.Error())
		return "", fmt.Errorf("generation: %w", err)
	}
	outputURL := sub.OutputURL
	if outputURL == "" {
		outputURL, err = o.gen.Await(ctx, sub.JobID)
		if err != nil {
			done(domain.OutcomeFailed, err.Error())
			return "", fmt.Errorf("generation: %w", err)
		}
	}
	done(domain.OutcomeSucceeded, "")
	return outputURL, nil
}

func (o *Orchestrator) download(ctx context.Context, url, prompt string) (*domain.LocalArtifact, error) {
	done := o.stage(domain.StageDownload)
	data, err := o.gen.Download(ctx, url)
	if err != nil {
		done(domain.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("download: %w", err)
	}
	artifact, err := o.cache.Store(data, prompt)
	if err != nil {
		done(domain.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("download: %w", err)
	}
	done(domain.OutcomeSucceeded, artifact.Path)
	return artifact, nil
}

func (o *Orchestrator) session(ctx context.Context) (*auth.Session, error) {
	if o.sessions == nil {
		return nil, nil
	}
	session, err := o.sessions.Silent(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: session lookup failed, continuing unauthenticated")
		return nil, err
	}
	return session, nil
}

func (o *Orchestrator) upload(ctx context.Context, artifact *domain.LocalArtifact) (*cdn.Result, bool) {
	if o.uploader == nil {
		return nil, false
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: artifact unreadable for upload")
		return nil, false
	}
	done := o.stage(domain.StageUpload)
	res, err := o.uploader.Upload(ctx, data, filepath.Base(artifact.Path), o.cdnFolder, []string{"generated"})
	if err != nil {
		// Non-terminal per design: record and degrade.
		o.logger.Warn().Err(err).Msg("orchestrator: cdn upload failed")
		done(domain.OutcomeFailed, err.Error())
		return nil, false
	}
	done(domain.OutcomeSucceeded, res.URL)
	return res, true
}

func (o *Orchestrator) persist(ctx context.Context, artifact *domain.LocalArtifact, upload *cdn.Result, prompt, model, ownerHash string) (string, bool) {
	if o.store == nil {
		return "", false
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: artifact unreadable for persist")
		return "", false
	}
	done := o.stage(domain.StagePersist)
	createdAt := artifact.CreatedAt
	key := objectstore.BuildKey(ownerHash, model, slug.Make(prompt, 40), createdAt)
	shareID := sharelink.DeriveID(key, createdAt)
	err = o.store.Write(ctx, key, data, ownerHash, objectstore.Meta{
		Prompt:    prompt,
		Model:     model,
		ShareID:   shareID,
		CDNURL:    upload.URL,
		CreatedAt: createdAt,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("owner", ownerHash).Msg("orchestrator: object-store write failed")
		done(domain.OutcomeFailed, err.Error())
		return "", false
	}
	shareURL := o.links.URL(shareID)
	done(domain.OutcomeSucceeded, shareURL)
	return shareURL, true
}

func (o *Orchestrator) skipCloud(result *Result, notice, reason string) {
	result.Notice = notice
	o.emit(domain.Event{Stage: domain.StageUpload, Outcome: domain.OutcomeSkipped, Detail: reason})
	o.emit(domain.Event{Stage: domain.StagePersist, Outcome: domain.OutcomeSkipped, Detail: reason})
	telemetry.RunsDegraded.Inc()
}

// stage emits the started event and returns a closer that emits the outcome
// and records the duration.
func (o *Orchestrator) stage(stage domain.Stage) func(domain.Outcome, string) {
	o.emit(domain.Event{Stage: stage, Outcome: domain.OutcomeStarted})
	start := time.Now()
	return func(outcome domain.Outcome, detail string) {
		telemetry.StageDuration.WithLabelValues(string(stage), string(outcome)).Observe(time.Since(start).Seconds())
		o.emit(domain.Event{Stage: stage, Outcome: outcome, Detail: detail})
	}
}
