package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/queue"
	"github.com/aerodrome-observer/backend/pkg/storage"
)

// MediaStore is the subset of the observations repository the worker needs.
type MediaStore interface {
	GetMedia(ctx context.Context, id uuid.UUID) (*models.ObservationMedia, error)
	MarkMediaReady(ctx context.Context, id uuid.UUID, size int64, mimeType string) error
	MarkMediaFailed(ctx context.Context, id uuid.UUID) error
}

// ObjectStat reports object metadata from storage.
type ObjectStat interface {
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
}

// JobQueue is the subset of queue.Queue used by the run loop.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// MediaProcessor confirms that uploaded observation media exist in storage.
type MediaProcessor struct {
	media   MediaStore
	objects ObjectStat
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewMediaProcessor creates a media verification processor.
func NewMediaProcessor(media MediaStore, objects ObjectStat, q JobQueue, logger *zap.Logger) *MediaProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaProcessor{media: media, objects: objects, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one media verify job.
func (p *MediaProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMediaVerify {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MediaVerifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	m, err := p.media.GetMedia(ctx, payload.MediaID)
	if err != nil {
		return fmt.Errorf("load media %s: %w", payload.MediaID, err)
	}
	if m.Status == models.MediaReady {
		p.logger.Info("media already ready", zap.String("media_id", m.ID.String()))
		return nil
	}

	info, err := p.objects.Stat(ctx, payload.Bucket, payload.Key)
	if err != nil {
		// Last attempt: record the failure before the job goes to the DLQ.
		if errors.Is(err, storage.ErrObjectNotFound) && job.Attempt >= queue.MaxRetries-1 {
			if mErr := p.media.MarkMediaFailed(ctx, payload.MediaID); mErr != nil {
				p.logger.Error("mark media failed", zap.Error(mErr), zap.String("media_id", payload.MediaID.String()))
			}
		}
		return fmt.Errorf("stat %s: %w", payload.Key, err)
	}

	mimeType := info.ContentType
	if mimeType == "" {
		mimeType = m.MimeType
	}
	if err := p.media.MarkMediaReady(ctx, payload.MediaID, info.Size, mimeType); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("media verified",
		zap.String("media_id", payload.MediaID.String()),
		zap.String("observation_id", payload.ObservationID.String()),
		zap.Int64("bytes", info.Size))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *MediaProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("media worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *MediaProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
