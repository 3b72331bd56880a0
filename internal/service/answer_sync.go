package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/freeexam"
	"github.com/freeexam/examdesk/internal/model"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

// ErrFlushIncomplete is returned when saves are still pending after a bounded flush.
var ErrFlushIncomplete = errors.New("answer flush incomplete")

// pendingTTL caps how long an undelivered save may linger.
const pendingTTL = 24 * time.Hour

// Removes a pending save only if nobody replaced it in the meantime.
var compareAndDelete = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// Replaces a pending save only if it is still the one we read.
var compareAndSet = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
	return 1
end
return 0
`)

// AnswerSaver persists one answer upstream.
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, req model.SaveAnswerRequest) error
}

// AnswerSync is a per-session retry queue for answer saves. Each session owns
// a Redis hash keyed by question ID, so re-selecting an answer overwrites the
// queued save and only the latest selection is ever delivered.
type AnswerSync struct {
	rdb         *redis.Client
	api         AnswerSaver
	ledger      LedgerRecorder
	events      EventPublisher
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

// NewAnswerSync creates an AnswerSync.
func NewAnswerSync(
	rdb *redis.Client,
	api AnswerSaver,
	ledger LedgerRecorder,
	events EventPublisher,
	maxAttempts int,
	retryDelay time.Duration,
	log zerolog.Logger,
) *AnswerSync {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AnswerSync{
		rdb:         rdb,
		api:         api,
		ledger:      ledger,
		events:      events,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		log:         log.With().Str("component", "answer_sync").Logger(),
	}
}

// RetryDelay is the pause between delivery rounds.
func (s *AnswerSync) RetryDelay() time.Duration {
	return s.retryDelay
}

// Enqueue queues a save, replacing any pending save for the same question.
func (s *AnswerSync) Enqueue(ctx context.Context, req model.SaveAnswerRequest) error {
	raw, err := json.Marshal(model.PendingSave{SaveAnswerRequest: req, EnqueuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode pending save: %w", err)
	}

	key := config.CacheKey.PendingAnswersKey(req.ExamID, req.UserID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, req.QuestionID, raw)
	pipe.Expire(ctx, key, pendingTTL)
	pipe.SAdd(ctx, config.WorkerKey.DirtySyncSessions, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue save: %w", err)
	}
	return nil
}

// Pending returns the undelivered saves of a session keyed by question ID.
func (s *AnswerSync) Pending(ctx context.Context, examID, userID string) (map[string]model.PendingSave, error) {
	entries, err := s.rdb.HGetAll(ctx, config.CacheKey.PendingAnswersKey(examID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read pending saves: %w", err)
	}
	out := make(map[string]model.PendingSave, len(entries))
	for qid, raw := range entries {
		var p model.PendingSave
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out[qid] = p
	}
	return out, nil
}

// PendingCount returns how many saves of a session are not yet delivered.
func (s *AnswerSync) PendingCount(ctx context.Context, examID, userID string) (int, error) {
	n, err := s.rdb.HLen(ctx, config.CacheKey.PendingAnswersKey(examID, userID)).Result()
	return int(n), err
}

// Flush delivers a session's pending saves synchronously, retrying in rounds
// up to the attempt bound.
func (s *AnswerSync) Flush(ctx context.Context, examID, userID string) error {
	key := config.CacheKey.PendingAnswersKey(examID, userID)
	for round := 0; round < s.maxAttempts; round++ {
		remaining, _, err := s.drain(ctx, key)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	return ErrFlushIncomplete
}

// Discard cancels whatever is still pending for a session and returns how
// many saves were dropped.
func (s *AnswerSync) Discard(ctx context.Context, examID, userID string) (int, error) {
	key := config.CacheKey.PendingAnswersKey(examID, userID)
	pipe := s.rdb.TxPipeline()
	hlen := pipe.HLen(ctx, key)
	pipe.Del(ctx, key)
	pipe.SRem(ctx, config.WorkerKey.DirtySyncSessions, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("discard pending saves: %w", err)
	}
	return int(hlen.Val()), nil
}

// ProcessNext takes one dirty session and makes a delivery round over it.
// It reports whether a session was found and whether any save failed.
func (s *AnswerSync) ProcessNext(ctx context.Context) (found, failed bool, err error) {
	key, err := s.rdb.SPop(ctx, config.WorkerKey.DirtySyncSessions).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("pop dirty session: %w", err)
	}

	remaining, failed, err := s.drain(ctx, key)
	if err != nil || remaining > 0 {
		// Keep the session dirty so the next round picks it up.
		if addErr := s.rdb.SAdd(context.Background(), config.WorkerKey.DirtySyncSessions, key).Err(); addErr != nil {
			s.log.Error().Err(addErr).Str("key", key).Msg("Re-mark dirty session failed")
		}
	}
	return true, failed, err
}

// drain makes one delivery attempt for every pending save under key and
// returns how many remain.
func (s *AnswerSync) drain(ctx context.Context, key string) (remaining int, failed bool, err error) {
	entries, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("read pending saves: %w", err)
	}

	for qid, raw := range entries {
		var p model.PendingSave
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Error().Err(err).Str("key", key).Str("question_id", qid).Msg("Dropping undecodable save")
			s.compareAndDelete(ctx, key, qid, raw)
			continue
		}

		sendErr := s.api.SaveAnswer(ctx, p.SaveAnswerRequest)
		if sendErr == nil {
			s.compareAndDelete(ctx, key, qid, raw)
			s.events.Publish(ctx, p.ExamID, p.UserID, ws.ServerEvent{
				Event: ws.EventSaved,
				Data:  ws.SavedData{QuestionID: p.QuestionID, OptionID: p.OptionID},
			})
			continue
		}
		if ctx.Err() != nil {
			return len(entries), true, ctx.Err()
		}

		failed = true
		p.Attempts++
		if p.Attempts >= s.maxAttempts || !retryable(sendErr) {
			s.giveUp(ctx, key, qid, raw, p, sendErr)
			continue
		}

		next, _ := json.Marshal(p)
		if _, err := compareAndSet.Run(ctx, s.rdb, []string{key}, qid, raw, string(next)).Result(); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("Update attempt count failed")
		}
		s.log.Warn().Err(sendErr).
			Str("user_id", p.UserID).
			Str("exam_id", p.ExamID).
			Str("question_id", p.QuestionID).
			Int("attempt", p.Attempts).
			Msg("Answer save failed, will retry")
	}

	n, err := s.rdb.HLen(ctx, key).Result()
	if err != nil {
		return 0, failed, fmt.Errorf("count pending saves: %w", err)
	}
	return int(n), failed, nil
}

func (s *AnswerSync) giveUp(ctx context.Context, key, qid, raw string, p model.PendingSave, cause error) {
	s.compareAndDelete(ctx, key, qid, raw)

	reason := freeexam.MessageOf(cause, cause.Error())
	s.log.Error().Err(cause).
		Str("user_id", p.UserID).
		Str("exam_id", p.ExamID).
		Str("question_id", p.QuestionID).
		Int("attempts", p.Attempts).
		Msg("Answer save dropped")

	s.ledger.Record(ctx, newSessionEvent(p.UserID, p.ExamID, model.EventAnswerSyncFailed, map[string]interface{}{
		"questionId": p.QuestionID,
		"optionId":   p.OptionID,
		"attempts":   p.Attempts,
		"reason":     reason,
	}))
	s.events.Publish(ctx, p.ExamID, p.UserID, ws.ServerEvent{
		Event: ws.EventSaveFailed,
		Data:  ws.SaveFailedData{QuestionID: p.QuestionID, OptionID: p.OptionID, Reason: reason},
	})
}

func (s *AnswerSync) compareAndDelete(ctx context.Context, key, qid, raw string) {
	if _, err := compareAndDelete.Run(ctx, s.rdb, []string{key}, qid, raw).Result(); err != nil {
		s.log.Error().Err(err).Str("key", key).Str("question_id", qid).Msg("Remove pending save failed")
	}
}

// retryable reports whether a failed save is worth sending again. Client
// errors other than timeouts and throttling will fail the same way next time.
func retryable(err error) bool {
	status := freeexam.StatusOf(err)
	if status == 0 || status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
