// Package objectstore persists shareable artifacts to an S3-compatible bucket,
// partitioned per owner hash, and lists a user's artifacts back.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/infra"
)

const (
	keyTimeFormat = "20060102T150405Z"

	contentType  = "image/png"
	cacheControl = "public, max-age=31536000"

	metaOwner     = "owner"
	metaPrompt    = "prompt"
	metaModel     = "model"
	metaShareID   = "share-id"
	metaCDNURL    = "cdn-url"
	metaCreatedAt = "created-at"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketPolicy(ctx context.Context, in *s3.PutBucketPolicyInput, opts ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
}

// Options configures the Writer.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
	Logger    *infra.Logger
}

// Writer owns the bucket-level operations for shareable artifacts.
type Writer struct {
	client s3API
	bucket string
	logger *infra.Logger
}

// Meta carries the per-artifact metadata attached to a write. All string
// values are sanitized to printable ASCII before being sent as object
// metadata, guarding the underlying transport against header injection.
type Meta struct {
	Prompt    string
	Model     string
	ShareID   string
	CDNURL    string
	CreatedAt time.Time
}

// Stats summarizes a user's stored artifacts.
type Stats struct {
	Count      int
	TotalBytes int64
}

// New builds a Writer against a real S3 endpoint.
func New(ctx context.Context, opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: opts.PathStyle,
					SigningRegion:     opts.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
	})
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Writer{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// BuildKey derives the deterministic storage key for an artifact:
// users/<ownerHash>/<compact-utc-ts>_<model>_<prompt-slug>. The prompt slug is
// expected pre-slugged by the caller.
func BuildKey(ownerHash, model, promptSlug string, ts time.Time) string {
	return fmt.Sprintf("users/%s/%s_%s_%s", ownerHash, ts.UTC().Format(keyTimeFormat), model, promptSlug)
}

// Write puts the artifact bytes plus its full metadata set at key. Either the
// whole object lands or nothing does; any failure surfaces as a typed
// *domain.StorageError.
func (w *Writer) Write(ctx context.Context, key string, data []byte, ownerHash string, meta Meta) error {
	metadata := map[string]string{
		metaOwner:     sanitizeMetaValue(ownerHash),
		metaPrompt:    sanitizeMetaValue(meta.Prompt),
		metaModel:     sanitizeMetaValue(meta.Model),
		metaShareID:   sanitizeMetaValue(meta.ShareID),
		metaCreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
	}
	if meta.CDNURL != "" {
		metadata[metaCDNURL] = sanitizeMetaValue(meta.CDNURL)
	}
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(w.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		Metadata:     metadata,
	})
	if err != nil {
		return &domain.StorageError{Op: "write", Err: err}
	}
	w.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("objectstore: artifact written")
	return nil
}

// List returns the owner's artifacts, newest first by last-modified, capped at
// max. Each record's owner metadata is re-checked against the requesting hash
// even though the prefix already partitions by owner.
func (w *Writer) List(ctx context.Context, ownerHash string, max int) ([]domain.ShareableArtifact, error) {
	objects, err := w.listObjects(ctx, ownerHash)
	if err != nil {
		return nil, err
	}
	if max > 0 && len(objects) > max {
		objects = objects[:max]
	}

	artifacts := make([]domain.ShareableArtifact, 0, len(objects))
	for _, obj := range objects {
		head, err := w.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(w.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return nil, &domain.StorageError{Op: "head", Err: err}
		}
		if head.Metadata[metaOwner] != ownerHash {
			w.logger.Warn().Str("key", aws.ToString(obj.Key)).Msg("objectstore: owner metadata mismatch, record skipped")
			continue
		}
		createdAt := aws.ToTime(obj.LastModified)
		if raw, ok := head.Metadata[metaCreatedAt]; ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				createdAt = parsed
			}
		}
		artifacts = append(artifacts, domain.ShareableArtifact{
			OwnerHash:      ownerHash,
			StorageKey:     aws.ToString(obj.Key),
			CDNURL:         head.Metadata[metaCDNURL],
			ShareID:        head.Metadata[metaShareID],
			OriginalPrompt: head.Metadata[metaPrompt],
			Model:          head.Metadata[metaModel],
			CreatedAt:      createdAt,
			SizeBytes:      aws.ToInt64(obj.Size),
		})
	}
	return artifacts, nil
}

// UserStats reports how many artifacts the owner has stored and their total
// size, for the sharing-stats surface.
func (w *Writer) UserStats(ctx context.Context, ownerHash string) (Stats, error) {
	objects, err := w.listObjects(ctx, ownerHash)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Count: len(objects)}
	for _, obj := range objects {
		stats.TotalBytes += aws.ToInt64(obj.Size)
	}
	return stats, nil
}

// EnsureBucket makes the bucket exist with a public-read object policy. Safe
// to invoke on every cold start.
func (w *Writer) EnsureBucket(ctx context.Context) error {
	_, err := w.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(w.bucket)})
	if err == nil {
		return nil
	}
	if _, err := w.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(w.bucket)}); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if !errors.As(err, &owned) && !errors.As(err, &exists) {
			return &domain.StorageError{Op: "create bucket", Err: err}
		}
	}
	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": "*",
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`, w.bucket)
	if _, err := w.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(w.bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return &domain.StorageError{Op: "put bucket policy", Err: err}
	}
	return nil
}

func (w *Writer) listObjects(ctx context.Context, ownerHash string) ([]types.Object, error) {
	prefix := "users/" + ownerHash + "/"
	var objects []types.Object
	var token *string
	for {
		out, err := w.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(w.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, &domain.StorageError{Op: "list", Err: err}
		}
		objects = append(objects, out.Contents...)
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})
	return objects, nil
}

// sanitizeMetaValue strips everything outside printable ASCII so prompt text
// cannot smuggle control bytes into transport headers, and bounds the length.
func sanitizeMetaValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 200 {
		out = out[:200]
	}
	return out
}
