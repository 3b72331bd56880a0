package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

// ResultsAPI is the slice of the backend the result viewers need.
type ResultsAPI interface {
	Leaderboard(ctx context.Context, examID, userID string, page, limit int) (*model.LeaderboardPage, error)
	AnswerSheet(ctx context.Context, userID, examID string) (*model.AnswerSheet, error)
}

// LeaderboardService serves read-only, cached result views.
type LeaderboardService struct {
	api   ResultsAPI
	cache *QueryCache
	log   zerolog.Logger
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(api ResultsAPI, cache *QueryCache, log zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{
		api:   api,
		cache: cache,
		log:   log.With().Str("component", "leaderboard_service").Logger(),
	}
}

// ClampPage normalizes paging input: page >= 1 and 1 <= limit <= 100.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	return page, limit
}

// Leaderboard returns one page of an exam's ranking.
func (s *LeaderboardService) Leaderboard(ctx context.Context, claims *Claims, examID string, page, limit int) (*model.LeaderboardPage, error) {
	page, limit = ClampPage(page, limit)
	key := config.CacheKey.LeaderboardKey(examID, claims.UserID, page, limit)
	out, err := cached(ctx, s.cache, key, config.CacheKey.ExamTag(examID), func(ctx context.Context) (*model.LeaderboardPage, error) {
		return s.api.Leaderboard(ctx, examID, claims.UserID, page, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	return out, nil
}

// AnswerSheet returns the caller's graded answers.
func (s *LeaderboardService) AnswerSheet(ctx context.Context, claims *Claims, examID string) (*model.AnswerSheet, error) {
	key := config.CacheKey.AnswerSheetKey(examID, claims.UserID)
	out, err := cached(ctx, s.cache, key, "", func(ctx context.Context) (*model.AnswerSheet, error) {
		return s.api.AnswerSheet(ctx, claims.UserID, examID)
	})
	if err != nil {
		return nil, fmt.Errorf("get answer sheet: %w", err)
	}
	return out, nil
}
