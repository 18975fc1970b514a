package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/pkg/queue"
)

// ObjectDeleter removes stored objects.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// AssetPurger deletes objects the asset store could not remove inline.
type AssetPurger struct {
	objects ObjectDeleter
	queue   JobSource
	logger  *zap.Logger
	backoff time.Duration
}

// NewAssetPurger creates an asset purge processor.
func NewAssetPurger(objects ObjectDeleter, q JobSource, logger *zap.Logger) *AssetPurger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetPurger{objects: objects, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one purge job. Objects already deleted are skipped on retry because
// deleting a missing object succeeds.
func (p *AssetPurger) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAssetPurge {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AssetPurgePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var errs []error
	for _, obj := range payload.Objects {
		if err := p.objects.Delete(ctx, obj); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("purge %s: %w", payload.Key, err)
	}
	p.logger.Info("asset objects purged", zap.String("key", payload.Key), zap.Int("objects", len(payload.Objects)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AssetPurger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("asset worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
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
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *AssetPurger) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
