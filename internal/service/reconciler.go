package service

import (
	"context"
	"errors"
	"time"

	"picshare/internal/storage"
	"picshare/internal/websocket"

	"go.uber.org/zap"
)

const reconcileBatchSize = 100

// Reconciler finishes image deletes that were interrupted after the pending
// marker was set.
type Reconciler struct {
	store     ImageStore
	media     storage.MediaStore
	publisher Publisher
	interval  time.Duration
	grace     time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(store ImageStore, media storage.MediaStore, publisher Publisher, interval, grace time.Duration, logger *zap.Logger) *Reconciler {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Reconciler{
		store:     store,
		media:     media,
		publisher: publisher,
		interval:  interval,
		grace:     grace,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciler sweep failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("reconciler finished pending deletes", zap.Int("count", n))
			}
		}
	}
}

// Sweep completes stale pending deletes and returns how many rows it removed.
// Images whose object delete fails stay pending for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.store.ListStalePendingDeletes(ctx, r.now().Add(-r.grace), reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, image := range stale {
		if err := r.media.Delete(ctx, image.URL); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			mediaFailures.WithLabelValues("delete").Inc()
			r.logger.Warn("reconciler could not delete media",
				zap.String("image_id", image.ID), zap.String("url", image.URL), zap.Error(err))
			continue
		}

		deleted, err := r.store.DeleteImage(ctx, image.ID)
		if err != nil {
			r.logger.Warn("reconciler could not delete image row", zap.String("image_id", image.ID), zap.Error(err))
			continue
		}
		if deleted {
			finished++
			imagesDeleted.WithLabelValues("reconciler").Inc()
			r.publisher.Publish(websocket.EventImageDeleted, map[string]string{"id": image.ID})
		}
	}

	return finished, nil
}
