package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AnswerDelivery makes one delivery round over a session with pending saves.
type AnswerDelivery interface {
	ProcessNext(ctx context.Context) (found, failed bool, err error)
	RetryDelay() time.Duration
}

// AnswerSyncWorker keeps delivering queued answer saves to the upstream API.
type AnswerSyncWorker struct {
	sync AnswerDelivery
	log  zerolog.Logger
}

// NewAnswerSyncWorker creates a new AnswerSyncWorker.
func NewAnswerSyncWorker(sync AnswerDelivery, log zerolog.Logger) *AnswerSyncWorker {
	return &AnswerSyncWorker{
		sync: sync,
		log:  log.With().Str("component", "answer_sync_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerSyncWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		found, failed, err := w.sync.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Delivery round failed")
		}

		// Busy sessions are drained back to back; idle or failing rounds back off.
		if found && !failed && err == nil {
			continue
		}
		w.sleep(ctx)
	}
}

func (w *AnswerSyncWorker) sleep(ctx context.Context) {
	delay := w.sync.RetryDelay()
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
