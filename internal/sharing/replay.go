package sharing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openmatlab/rollflow/internal/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// replayBatchSize bounds how many queued writes one drain pass picks up.
const replayBatchSize = 50

// Replayer drains the fallback cache's pending-write queue into the primary
// store on a fixed interval.
type Replayer struct {
	db       *gorm.DB
	store    *cache.Store
	interval time.Duration
	logger   *zap.Logger
}

// NewReplayer constructs a replayer. Interval values at or below zero default
// to one minute.
func NewReplayer(db *gorm.DB, store *cache.Store, interval time.Duration, logger *zap.Logger) *Replayer {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &Replayer{db: db, store: store, interval: interval, logger: logger}
}

// Run drains the queue on every tick until the context is cancelled.
func (r *Replayer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			replayed, failed := r.Drain(ctx)
			if replayed > 0 || failed > 0 {
				r.logger.Info("replayed fallback writes",
					zap.Int("replayed", replayed),
					zap.Int("failed", failed))
			}
		}
	}
}

// Drain replays one batch of queued writes. Each successful insert is acked,
// which also drops the corresponding cache entry; failures are nacked and
// retried on a later pass.
func (r *Replayer) Drain(ctx context.Context) (replayed, failed int) {
	writes, err := r.store.Pending(ctx, replayBatchSize)
	if err != nil {
		r.logger.Error("failed to read pending writes", zap.Error(err))
		return 0, 0
	}
	for _, write := range writes {
		if err := r.replayOne(ctx, write); err != nil {
			failed++
			r.logger.Warn("replay attempt failed",
				zap.String("namespace", write.Namespace),
				zap.String("key", write.Key),
				zap.Int("attempts", write.Attempts+1),
				zap.Error(err))
			if nackErr := r.store.Nack(ctx, write); nackErr != nil {
				r.logger.Error("failed to nack pending write", zap.Error(nackErr))
			}
			continue
		}
		if err := r.store.Ack(ctx, write); err != nil {
			r.logger.Error("failed to ack pending write", zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, failed
}

func (r *Replayer) replayOne(ctx context.Context, write cache.PendingWrite) error {
	switch write.Namespace {
	case nsShared:
		var record SharedContent
		if err := json.Unmarshal([]byte(write.ValueJSON), &record); err != nil {
			return err
		}
		err := r.db.WithContext(ctx).Create(&record).Error
		if isDuplicateErr(err) {
			// Already landed on a previous pass; treat as replayed.
			return nil
		}
		return err
	case nsGroupShared:
		var record GroupSharedContent
		if err := json.Unmarshal([]byte(write.ValueJSON), &record); err != nil {
			return err
		}
		err := r.db.WithContext(ctx).Create(&record).Error
		if isDuplicateErr(err) {
			return nil
		}
		return err
	default:
		r.logger.Warn("dropping pending write with unknown namespace",
			zap.String("namespace", write.Namespace))
		return nil
	}
}
