package model

import (
	"time"
)

// ExamStatus enumerates the admin-set lifecycle of an exam. The gateway never
// transitions it on its own.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusActive    ExamStatus = "ACTIVE"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the exam entity as served by the freeExam backend.
type Exam struct {
	ID                string     `json:"id" binding:"required"`
	Title             string     `json:"title" binding:"required"`
	Description       string     `json:"description,omitempty"`
	Instructions      string     `json:"instructions,omitempty"`
	PackageID         string     `json:"packageId,omitempty"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	DurationInMinutes int        `json:"durationInMinutes" binding:"min=0"`
	TotalMarks        float64    `json:"totalMarks" binding:"min=0"`
	NegativeMark      float64    `json:"negativeMark" binding:"min=0"`
	Status            ExamStatus `json:"status,omitempty" binding:"omitempty,oneof=DRAFT PUBLISHED ACTIVE COMPLETED ARCHIVED"`
	CreatedBy         string     `json:"createdBy,omitempty"`
}

// ExamSummary is the subset of an exam embedded in read-only views.
type ExamSummary struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	DurationInMinutes int        `json:"durationInMinutes"`
	TotalMarks        float64    `json:"totalMarks"`
	NegativeMark      float64    `json:"negativeMark"`
}

// Summary strips an exam down to what views need.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:                e.ID,
		Title:             e.Title,
		Description:       e.Description,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		DurationInMinutes: e.DurationInMinutes,
		TotalMarks:        e.TotalMarks,
		NegativeMark:      e.NegativeMark,
	}
}

// CreateExamRequest is the payload for creating an exam under a package.
type CreateExamRequest struct {
	PackageID         string     `json:"packageId" binding:"required,max=64"`
	Title             string     `json:"title" binding:"required,min=3,max=255"`
	Description       string     `json:"description" binding:"omitempty,max=2000"`
	Instructions      string     `json:"instructions" binding:"omitempty,max=4000"`
	StartTime         time.Time  `json:"startTime" binding:"required"`
	EndTime           time.Time  `json:"endTime" binding:"required,gtfield=StartTime"`
	DurationInMinutes int        `json:"durationInMinutes" binding:"required,min=1,max=600"`
	TotalMarks        float64    `json:"totalMarks" binding:"min=0"`
	NegativeMark      float64    `json:"negativeMark" binding:"min=0,max=100"`
	Status            ExamStatus `json:"status" binding:"omitempty,oneof=DRAFT PUBLISHED ACTIVE COMPLETED ARCHIVED"`
	CreatedBy         string     `json:"createdBy,omitempty"`
}
