package freeexam

import (
	"context"
	"net/http"

	"github.com/freeexam/examdesk/internal/model"
)

// UserByPhone looks a student up by phone number.
func (c *Client) UserByPhone(ctx context.Context, phone string) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodGet, "/freeExam/users/phone/"+esc(phone), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPackages(ctx context.Context) ([]model.Package, error) {
	var out []model.Package
	if err := c.do(ctx, http.MethodGet, "/freeExam/packages", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePackage(ctx context.Context, req model.CreatePackageRequest) (*model.Package, error) {
	var out model.Package
	if err := c.do(ctx, http.MethodPost, "/freeExam/packages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListExamsByPackage(ctx context.Context, packageID string) ([]model.Exam, error) {
	var out []model.Exam
	if err := c.do(ctx, http.MethodGet, "/freeExam/packages/"+esc(packageID)+"/exams", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error) {
	var out model.Exam
	if err := c.do(ctx, http.MethodPost, "/freeExam/exams", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateQuestion(ctx context.Context, examID string, req model.CreateQuestionRequest) (*model.Question, error) {
	var out model.Question
	if err := c.do(ctx, http.MethodPost, "/freeExam/exams/"+esc(examID)+"/questions", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkCreateQuestions adds many questions in one call.
func (c *Client) BulkCreateQuestions(ctx context.Context, examID string, questions []model.CreateQuestionRequest) error {
	body := model.BulkQuestionsRequest{Questions: questions}
	return c.do(ctx, http.MethodPost, "/freeExam/exams/"+esc(examID)+"/questions/bulk", nil, body, nil)
}
