package chat

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/infra"
)

type janitorStore interface {
	PurgeResolvedPending(ctx context.Context, before time.Time) (int64, error)
}

// PendingJanitor periodically drops resolved verification records whose
// deadline has passed, keeping the pending table from growing forever.
type PendingJanitor struct {
	store    janitorStore
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPendingJanitor(store janitorStore, interval time.Duration) *PendingJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PendingJanitor{store: store, interval: interval}
}

func (j *PendingJanitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		infra.GoRecoverable(-1, "pending_janitor", func() {
			j.run(runCtx)
		})
	}()
	log.WithField("interval", j.interval.String()).Info("pending janitor started")
	return nil
}

func (j *PendingJanitor) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	return nil
}

func (j *PendingJanitor) run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *PendingJanitor) purge(ctx context.Context) {
	n, err := j.store.PurgeResolvedPending(ctx, time.Now())
	if err != nil {
		log.WithError(err).Error("cant purge resolved verifications")
		return
	}
	if n > 0 {
		log.WithField("purged", n).Debug("dropped resolved verification records")
	}
}
