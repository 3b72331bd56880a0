package freeexam

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/freeexam/examdesk/internal/model"
)

// CheckAccess returns the access decision for a user. A null payload yields
// (nil, nil); the caller treats missing access data as denied.
func (c *Client) CheckAccess(ctx context.Context, examID, userID string) (*model.ExamAccessData, error) {
	var out model.ExamAccessData
	err := c.do(ctx, http.MethodGet, "/freeExam/exams/"+esc(examID)+"/access/"+esc(userID), nil, nil, &out)
	if errors.Is(err, ErrEmptyResponse) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExam returns exam metadata.
func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var out model.Exam
	if err := c.do(ctx, http.MethodGet, "/freeExam/exams/"+esc(examID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartExam marks the exam as started for the user.
func (c *Client) StartExam(ctx context.Context, examID, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "/freeExam/exams/"+esc(examID)+"/start", nil, body, nil)
}

// ExamQuestions returns the exam and its ordered questions.
func (c *Client) ExamQuestions(ctx context.Context, examID string) (*model.ExamPaper, error) {
	var out model.ExamPaper
	if err := c.do(ctx, http.MethodGet, "/freeExam/exams/"+esc(examID)+"/exam-questions", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveAnswer persists one answer.
func (c *Client) SaveAnswer(ctx context.Context, req model.SaveAnswerRequest) error {
	return c.do(ctx, http.MethodPost, "/freeExam/answers", nil, req, nil)
}

// SubmitExam finalizes the user's attempt.
func (c *Client) SubmitExam(ctx context.Context, userID, examID string) error {
	return c.do(ctx, http.MethodPost, "/freeExam/users/"+esc(userID)+"/exams/"+esc(examID)+"/submit", nil, struct{}{}, nil)
}

// UserExamStatus returns the user's progress on an exam.
func (c *Client) UserExamStatus(ctx context.Context, userID, examID string) (*model.UserExamStatus, error) {
	var out model.UserExamStatus
	if err := c.do(ctx, http.MethodGet, "/freeExam/users/"+esc(userID)+"/exams/"+esc(examID)+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns one page of the exam ranking. userID lets the backend
// fill in the caller's own rank.
func (c *Client) Leaderboard(ctx context.Context, examID, userID string, page, limit int) (*model.LeaderboardPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if userID != "" {
		q.Set("userId", userID)
	}
	var out model.LeaderboardPage
	if err := c.do(ctx, http.MethodGet, "/freeExam/exams/"+esc(examID)+"/leaderboard", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnswerSheet returns the graded answers of a submitted exam.
func (c *Client) AnswerSheet(ctx context.Context, userID, examID string) (*model.AnswerSheet, error) {
	var out model.AnswerSheet
	if err := c.do(ctx, http.MethodGet, "/freeExam/users/"+esc(userID)+"/exams/"+esc(examID)+"/results", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
