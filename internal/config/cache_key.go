package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the JTI of a user's current login.
func (r *CacheKeyStruct) UserSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// ExamMetaKey returns the cache key for an exam's metadata.
func (r *CacheKeyStruct) ExamMetaKey(examID string) string {
	return fmt.Sprintf("exam:%s:meta", examID)
}

// ExamQuestionsKey returns the cache key for an exam's question paper.
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// ExamAccessKey returns the cache key for a user's access data on an exam.
func (r *CacheKeyStruct) ExamAccessKey(examID, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:access", userID, examID)
}

// LeaderboardKey returns the cache key for one leaderboard page as seen by a user.
func (r *CacheKeyStruct) LeaderboardKey(examID, userID string, page, limit int) string {
	return fmt.Sprintf("exam:%s:leaderboard:%s:%d:%d", examID, userID, page, limit)
}

// AnswerSheetKey returns the cache key for a user's answer sheet.
func (r *CacheKeyStruct) AnswerSheetKey(examID, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:answer_sheet", userID, examID)
}

// ExamTag returns the tag set indexing every cache key derived from an exam.
func (r *CacheKeyStruct) ExamTag(examID string) string {
	return fmt.Sprintf("tag:exam:%s", examID)
}

// PendingAnswersKey returns the hash of not-yet-synced answers for a session,
// keyed by question ID.
func (r *CacheKeyStruct) PendingAnswersKey(examID, userID string) string {
	return fmt.Sprintf("sync:%s:%s:pending", userID, examID)
}

// SessionEventsChannel returns the Redis PubSub channel for a session's events.
func (r *CacheKeyStruct) SessionEventsChannel(examID, userID string) string {
	return fmt.Sprintf("session:%s:%s:events", userID, examID)
}

// LoginRateKey returns the fixed-window counter key for login attempts from one client.
func (r *CacheKeyStruct) LoginRateKey(clientIP string, window int64) string {
	return fmt.Sprintf("ratelimit:login:%s:%d", clientIP, window)
}

var CacheKey = NewCacheKeyStruct()
