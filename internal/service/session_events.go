package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

// EventPublisher pushes stream events to whoever is watching a session.
type EventPublisher interface {
	Publish(ctx context.Context, examID, userID string, ev ws.ServerEvent)
}

// LedgerRecorder records session lifecycle events for the audit trail.
type LedgerRecorder interface {
	Record(ctx context.Context, ev model.SessionEvent)
}

// RedisEventBus fans session events out over Redis PubSub so any gateway
// instance holding the student's WebSocket can forward them.
type RedisEventBus struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventBus creates a RedisEventBus.
func NewRedisEventBus(rdb *redis.Client, log zerolog.Logger) *RedisEventBus {
	return &RedisEventBus{
		rdb: rdb,
		log: log.With().Str("component", "event_bus").Logger(),
	}
}

// Publish encodes and publishes one event. Failures are logged only.
func (b *RedisEventBus) Publish(ctx context.Context, examID, userID string, ev ws.ServerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("event", string(ev.Event)).Msg("Encode event failed")
		return
	}
	channel := config.CacheKey.SessionEventsChannel(examID, userID)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.Warn().Err(err).Str("channel", channel).Msg("Publish failed")
	}
}

// Subscribe opens a subscription to one session's events. The caller closes it.
func (b *RedisEventBus) Subscribe(ctx context.Context, examID, userID string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(examID, userID))
}

// LedgerQueue buffers ledger events in a Redis list for the ledger worker.
type LedgerQueue struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewLedgerQueue creates a LedgerQueue.
func NewLedgerQueue(rdb *redis.Client, log zerolog.Logger) *LedgerQueue {
	return &LedgerQueue{
		rdb: rdb,
		log: log.With().Str("component", "ledger_queue").Logger(),
	}
}

// Record enqueues ev. Failures are logged only; the ledger never blocks a session.
func (q *LedgerQueue) Record(ctx context.Context, ev model.SessionEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		q.log.Error().Err(err).Msg("Encode ledger event failed")
		return
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.LedgerEventsQueue, raw).Err(); err != nil {
		q.log.Warn().Err(err).
			Str("user_id", ev.UserID).
			Str("exam_id", ev.ExamID).
			Str("event", string(ev.Event)).
			Msg("Ledger enqueue failed")
	}
}

// newSessionEvent builds a ledger event with an optional JSON detail.
func newSessionEvent(userID, examID string, typ model.SessionEventType, detail map[string]interface{}) model.SessionEvent {
	ev := model.SessionEvent{
		UserID:    userID,
		ExamID:    examID,
		Event:     typ,
		CreatedAt: time.Now(),
	}
	if len(detail) > 0 {
		if raw, err := json.Marshal(detail); err == nil {
			ev.Detail = raw
		}
	}
	return ev
}
