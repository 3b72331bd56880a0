package model

import "time"

// TimeStatus is the server's view of where "now" sits relative to an exam window.
type TimeStatus struct {
	IsAfterEnd bool `json:"isAfterEnd"`
	IsUpcoming bool `json:"isUpcoming"`
	IsOngoing  bool `json:"isOngoing"`
}

// ExamAccessData answers "may this user take this exam right now".
type ExamAccessData struct {
	HasParticipated bool       `json:"hasParticipated"`
	TimeStatus      TimeStatus `json:"timeStatus"`
}

// ExistingAnswer is an answer the backend already holds for a started exam.
type ExistingAnswer struct {
	QuestionID string `json:"questionId" binding:"required"`
	OptionID   string `json:"optionId" binding:"required"`
	TimeTaken  int    `json:"timeTaken,omitempty"`
}

// UserExamStatus is the per-user progress record for one exam.
type UserExamStatus struct {
	HasStarted      bool             `json:"hasStarted"`
	HasCompleted    bool             `json:"hasCompleted"`
	StartedAt       *time.Time       `json:"startedAt,omitempty"`
	ExistingAnswers []ExistingAnswer `json:"existingAnswers" binding:"dive"`
}

// UserProgress is the optional progress block returned with exam questions.
type UserProgress struct {
	AnsweredCount int        `json:"answeredCount"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
}

// ExamPaper is the exam-questions payload: the exam plus its ordered questions.
type ExamPaper struct {
	ExamData     Exam           `json:"examData"`
	Questions    []ExamQuestion `json:"questions" binding:"dive"`
	UserProgress *UserProgress  `json:"userProgress,omitempty"`
}

// UserAnswer is the local record of one answered question.
type UserAnswer struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	IsAnswered bool   `json:"isAnswered"`
	TimeTaken  int    `json:"timeTaken"`
}

// SaveAnswerRequest is the upstream body for persisting one answer.
type SaveAnswerRequest struct {
	UserID     string `json:"userId"`
	ExamID     string `json:"examId"`
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	TimeTaken  int    `json:"timeTaken"`
}

// PendingSave is a queued answer save awaiting delivery upstream.
type PendingSave struct {
	SaveAnswerRequest
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// SelectAnswerRequest is the student's answer selection.
type SelectAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required,max=64"`
	OptionID   string `json:"optionId" binding:"required,max=64"`
}

// ProgressStats counts answered and unanswered questions of a session.
type ProgressStats struct {
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// SubmitTrigger records what caused a submission.
type SubmitTrigger string

const (
	TriggerManual  SubmitTrigger = "manual"
	TriggerTimeout SubmitTrigger = "timeout"
)

// SubmitPreview is the data shown in the submit confirmation dialog.
type SubmitPreview struct {
	ProgressStats
	Warning string `json:"warning,omitempty"`
}

// SubmitResult is returned after a submission has been accepted.
type SubmitResult struct {
	ResultsPath      string        `json:"resultsPath"`
	Trigger          SubmitTrigger `json:"trigger"`
	AlreadySubmitted bool          `json:"alreadySubmitted"`
}
