package domain

import "time"

// LocalArtifact is a downloaded generation result held in transient storage.
// Exactly one local artifact exists per completed job; it is removed either by
// an explicit cleanup or when its TTL expires.
type LocalArtifact struct {
	Path      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ShareableArtifact is the durable, user-partitioned record in the object
// store. OwnerHash is always a one-way hash of the account identifier; the raw
// identifier is never persisted or logged.
type ShareableArtifact struct {
	OwnerHash      string
	StorageKey     string
	CDNURL         string
	ShareID        string
	ShareURL       string
	OriginalPrompt string
	Model          string
	CreatedAt      time.Time
	SizeBytes      int64
}

// Stage names the pipeline step an Event refers to.
type Stage string

const (
	StageRefine   Stage = "refine"
	StageGenerate Stage = "generate"
	StageDownload Stage = "download"
	StageUpload   Stage = "upload"
	StagePersist  Stage = "persist"
)

// Outcome classifies a stage transition.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Event is the structured progress notification emitted by the orchestrator at
// every stage boundary. Presentation layers subscribe to these instead of the
// core calling into UI code directly.
type Event struct {
	Stage   Stage
	Outcome Outcome
	Detail  string
}
