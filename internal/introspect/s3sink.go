package introspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ncruces/go-strftime"

	"github.com/me/gowe/internal/scheduler"
)

// s3KeyFormat is a strftime pattern rather than Go's reference-time layout
// so the same format string could be shared with a non-Go fleet-monitoring
// tool reading the same bucket.
const s3KeyFormat = "%Y%m%dT%H%M%S.%fZ"

// S3Sink periodically uploads the current scheduler.Snapshot as JSON to an
// S3 bucket, for fleets that run the scheduler headless on edge devices and
// want a central place to watch graph topology without SSHing in. Off by
// default: a nil *S3Sink is valid and every method on it is a no-op, so
// callers can construct one unconditionally from config and just not
// configure a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Sink builds a sink against bucket/prefix in region, using the
// default AWS credential chain (env vars, shared config, IMDS). Returns nil
// (not an error) if bucket is empty, so callers can wire this
// unconditionally and skip it entirely when telemetry isn't configured.
func NewS3Sink(ctx context.Context, bucket, prefix, region string, logger *slog.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "introspect-s3sink", "bucket", bucket),
	}, nil
}

// Upload serializes snap as JSON and uploads it, keyed by timestamp, using
// the multipart-aware manager.Uploader so large snapshots (many graphs,
// many blocks) don't need to fit in a single PutObject call.
func (s *S3Sink) Upload(ctx context.Context, at time.Time, snap scheduler.Snapshot) error {
	if s == nil {
		return nil
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%s.json", s.prefix, strftime.Format(s3KeyFormat, at.UTC()))
	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot to s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("snapshot uploaded", "key", key, "bytes", len(body))
	return nil
}

// Run uploads snap on every tick until ctx is cancelled. snapshotter is
// called fresh each tick so the sink always uploads live state.
func (s *S3Sink) Run(ctx context.Context, interval time.Duration, snapshotter func() scheduler.Snapshot) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Upload(ctx, now, snapshotter()); err != nil {
				s.logger.Warn("telemetry upload failed", "error", err)
			}
		}
	}
}
