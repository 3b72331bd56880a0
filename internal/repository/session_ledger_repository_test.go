package repository

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/freeexam/examdesk/internal/model"
)

func TestInsertQueryWritesOneRowPerEvent(t *testing.T) {
	r := NewSessionLedgerRepository(nil)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []model.SessionEvent{
		{UserID: "u1", ExamID: "e1", Event: model.EventExamStarted, CreatedAt: at},
		{UserID: "u1", ExamID: "e1", Event: model.EventSubmitted, Detail: json.RawMessage(`{"answered":3}`), CreatedAt: at},
	}

	sql, args, err := r.insertQuery(events).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.HasPrefix(sql, "INSERT INTO session_events (user_id,exam_id,event,detail,created_at) VALUES ") {
		t.Fatalf("unexpected insert: %s", sql)
	}
	if !strings.Contains(sql, "($6,$7,$8,$9,$10)") {
		t.Fatalf("expected dollar placeholders for the second row: %s", sql)
	}
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}
	if args[2] != "exam_started" || args[3] != nil {
		t.Fatalf("first row should carry the event name and a NULL detail: %v", args[:5])
	}
	if args[8] != `{"answered":3}` {
		t.Fatalf("detail should be passed as text, got %#v", args[8])
	}
}

func TestListQueriesApplyFilterAndPage(t *testing.T) {
	r := NewSessionLedgerRepository(nil)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, page := r.listQueries(model.SessionEventFilter{
		UserID:  "u1",
		Event:   string(model.EventAutoSubmitted),
		Since:   &since,
		Page:    3,
		PerPage: 20,
	})

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		t.Fatalf("count ToSql: %v", err)
	}
	want := "SELECT COUNT(*) FROM session_events WHERE (user_id = $1 AND event = $2 AND created_at >= $3)"
	if countSQL != want {
		t.Fatalf("count query\n got: %s\nwant: %s", countSQL, want)
	}
	if len(countArgs) != 3 || countArgs[0] != "u1" || countArgs[1] != "auto_submitted" {
		t.Fatalf("unexpected count args: %v", countArgs)
	}

	pageSQL, pageArgs, err := page.ToSql()
	if err != nil {
		t.Fatalf("page ToSql: %v", err)
	}
	for _, part := range []string{
		"SELECT id, user_id, exam_id, event, detail, created_at FROM session_events",
		"ORDER BY created_at DESC, id DESC",
		"LIMIT 20",
		"OFFSET 40",
	} {
		if !strings.Contains(pageSQL, part) {
			t.Fatalf("page query missing %q: %s", part, pageSQL)
		}
	}
	if len(pageArgs) != 3 {
		t.Fatalf("expected the filter args only, got %v", pageArgs)
	}
}

func TestListQueriesWithoutFilterMatchEverything(t *testing.T) {
	r := NewSessionLedgerRepository(nil)
	count, _ := r.listQueries(model.SessionEventFilter{Page: 1, PerPage: 50})

	sql, args, err := count.ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if strings.Contains(sql, "$1") || len(args) != 0 {
		t.Fatalf("expected no bound filters, got %s %v", sql, args)
	}
}
