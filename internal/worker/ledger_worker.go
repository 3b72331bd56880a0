package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
)

const (
	LedgerBatchSize    = 50
	LedgerBatchTimeout = 2 * time.Second
	LedgerPollTimeout  = 1 * time.Second
	LedgerMaxRequeues  = 5
)

// LedgerStore persists session events.
type LedgerStore interface {
	InsertBatch(ctx context.Context, events []model.SessionEvent) error
	Insert(ctx context.Context, ev model.SessionEvent) error
}

// LedgerWorker moves session events from the Redis queue into PostgreSQL in batches.
type LedgerWorker struct {
	store LedgerStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewLedgerWorker(store LedgerStore, rdb *redis.Client, log zerolog.Logger) *LedgerWorker {
	return &LedgerWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "ledger_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *LedgerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LedgerWorker started")

	batch := make([]model.SessionEvent, 0, LedgerBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= LedgerBatchSize || time.Since(lastFlush) >= LedgerBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, LedgerPollTimeout, config.WorkerKey.LedgerEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(LedgerPollTimeout)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var ev model.SessionEvent
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, ev)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

func (w *LedgerWorker) flushSafe(ctx context.Context, batch []model.SessionEvent) {
	if len(batch) == 0 {
		return
	}

	if err := w.store.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk ledger insert failed, using fallback")

		for _, ev := range batch {
			if err := w.store.Insert(ctx, ev); err != nil {
				w.requeue(ev, err)
			}
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("ledger batch written")
}

// requeue pushes a failed event back for a later batch. Events the database
// rejected outright, or that keep failing, are dropped.
func (w *LedgerWorker) requeue(ev model.SessionEvent, cause error) {
	log := w.log.With().
		Str("user_id", ev.UserID).
		Str("exam_id", ev.ExamID).
		Str("event", string(ev.Event)).
		Int("requeues", ev.Requeues).
		Logger()

	if rejected(cause) {
		log.Error().Err(cause).Msg("ledger event rejected by database, dropping")
		return
	}
	if ev.Requeues >= LedgerMaxRequeues {
		log.Error().Err(cause).Msg("ledger insert kept failing, dropping")
		return
	}

	ev.Requeues++
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("encode ledger event for requeue")
		return
	}
	if err := w.rdb.RPush(context.Background(), config.WorkerKey.LedgerEventsQueue, raw).Err(); err != nil {
		log.Error().Err(err).AnErr("insert_error", cause).Msg("ledger requeue failed, event lost")
		return
	}
	log.Warn().Err(cause).Msg("ledger insert failed, requeued")
}

// rejected reports errors that retrying cannot fix: data exceptions,
// constraint violations and schema errors.
func rejected(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, class := range []string{"22", "23", "42"} {
		if strings.HasPrefix(pgErr.Code, class) {
			return true
		}
	}
	return false
}
