package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freeexam/examdesk/internal/model"
)

var ledgerColumns = []string{"user_id", "exam_id", "event", "detail", "created_at"}

// SessionLedgerRepository stores the session audit trail.
type SessionLedgerRepository struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

// NewSessionLedgerRepository creates a new SessionLedgerRepository.
func NewSessionLedgerRepository(pool *pgxpool.Pool) *SessionLedgerRepository {
	return &SessionLedgerRepository{
		pool: pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// detailArg maps an empty detail to NULL.
func detailArg(detail json.RawMessage) interface{} {
	if len(detail) == 0 {
		return nil
	}
	return string(detail)
}

// InsertBatch writes many events in one statement.
func (r *SessionLedgerRepository) InsertBatch(ctx context.Context, events []model.SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := r.insertQuery(events).ToSql()
	if err != nil {
		return fmt.Errorf("build batch insert: %w", err)
	}
	_, err = r.pool.Exec(ctx, sql, args...)
	return err
}

func (r *SessionLedgerRepository) insertQuery(events []model.SessionEvent) squirrel.InsertBuilder {
	q := r.sb.Insert("session_events").Columns(ledgerColumns...)
	for _, ev := range events {
		q = q.Values(ev.UserID, ev.ExamID, string(ev.Event), detailArg(ev.Detail), ev.CreatedAt)
	}
	return q
}

// Insert writes a single event.
func (r *SessionLedgerRepository) Insert(ctx context.Context, ev model.SessionEvent) error {
	return r.InsertBatch(ctx, []model.SessionEvent{ev})
}

// List returns one page of events matching filter, newest first, plus the total count.
func (r *SessionLedgerRepository) List(ctx context.Context, filter model.SessionEventFilter) ([]model.SessionEvent, int64, error) {
	countQuery, listQuery := r.listQueries(filter)
	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session events: %w", err)
	}
	if total == 0 {
		return []model.SessionEvent{}, 0, nil
	}

	querySQL, args, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	events := make([]model.SessionEvent, 0, filter.PerPage)
	for rows.Next() {
		var ev model.SessionEvent
		var event string
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ExamID, &event, &detail, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan session event: %w", err)
		}
		ev.Event = model.SessionEventType(event)
		if len(detail) > 0 {
			ev.Detail = json.RawMessage(detail)
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// listQueries builds the count and page queries for filter.
func (r *SessionLedgerRepository) listQueries(filter model.SessionEventFilter) (count, page squirrel.SelectBuilder) {
	where := squirrel.And{}
	if filter.UserID != "" {
		where = append(where, squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.ExamID != "" {
		where = append(where, squirrel.Eq{"exam_id": filter.ExamID})
	}
	if filter.Event != "" {
		where = append(where, squirrel.Eq{"event": filter.Event})
	}
	if filter.Since != nil {
		where = append(where, squirrel.GtOrEq{"created_at": *filter.Since})
	}

	count = r.sb.Select("COUNT(*)").From("session_events").Where(where)
	page = r.sb.Select("id", "user_id", "exam_id", "event", "detail", "created_at").
		From("session_events").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.PerPage)).
		Offset(uint64((filter.Page - 1) * filter.PerPage))
	return count, page
}
