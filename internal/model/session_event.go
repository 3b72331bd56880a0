package model

import (
	"encoding/json"
	"time"
)

// SessionEventType names a lifecycle event recorded in the session ledger.
type SessionEventType string

const (
	EventExamStarted      SessionEventType = "exam_started"
	EventSessionOpened    SessionEventType = "session_opened"
	EventAnswerSyncFailed SessionEventType = "answer_sync_failed"
	EventSubmitted        SessionEventType = "submitted"
	EventAutoSubmitted    SessionEventType = "auto_submitted"
	EventSubmitFailed     SessionEventType = "submit_failed"
)

// SessionEvent is one ledger row.
type SessionEvent struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	ExamID    string           `json:"exam_id"`
	Event     SessionEventType `json:"event"`
	Detail    json.RawMessage  `json:"detail,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	// Requeues counts failed persist attempts while the event sits in the
	// queue. It is never stored.
	Requeues int `json:"requeues,omitempty"`
}

// SessionEventFilter narrows a ledger listing.
type SessionEventFilter struct {
	UserID  string     `form:"user_id" binding:"omitempty,max=64"`
	ExamID  string     `form:"exam_id" binding:"omitempty,max=64"`
	Event   string     `form:"event" binding:"omitempty,oneof=exam_started session_opened answer_sync_failed submitted auto_submitted submit_failed"`
	Since   *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Page    int        `form:"page" binding:"omitempty,min=1"`
	PerPage int        `form:"per_page" binding:"omitempty,min=1,max=200"`
}
