package model

// Option is one choice of a multiple-choice question.
type Option struct {
	ID         string `json:"id" binding:"required"`
	QuestionID string `json:"questionId,omitempty"`
	Order      int    `json:"order"`
	Text       string `json:"text"`
	Image      string `json:"image,omitempty"`
	IsCorrect  bool   `json:"isCorrect,omitempty"`
}

// Question is a multiple-choice question with its ordered options.
type Question struct {
	ID            string   `json:"id" binding:"required"`
	Text          string   `json:"text"`
	Explanation   string   `json:"explanation,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Subject       string   `json:"subject,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	Image         string   `json:"image,omitempty"`
	Options       []Option `json:"options" binding:"dive"`
	CorrectOption string   `json:"correctOption,omitempty"`
}

// ExamQuestion places a question into an exam with per-exam marks and order.
type ExamQuestion struct {
	ID         string   `json:"id,omitempty"`
	ExamID     string   `json:"examId,omitempty"`
	QuestionID string   `json:"questionId,omitempty"`
	Marks      float64  `json:"marks" binding:"min=0"`
	Order      int      `json:"order"`
	Question   Question `json:"question"`
}

// OptionInput is one option of a question being authored.
type OptionInput struct {
	Text      string `json:"text" yaml:"text" binding:"required_without=Image,max=1000"`
	Image     string `json:"image,omitempty" yaml:"image" binding:"omitempty,url"`
	IsCorrect bool   `json:"isCorrect" yaml:"isCorrect"`
}

// CreateQuestionRequest is the payload for adding a question (with options) to an exam.
type CreateQuestionRequest struct {
	Text        string        `json:"text" yaml:"text" binding:"required,min=1,max=4000"`
	Explanation string        `json:"explanation,omitempty" yaml:"explanation" binding:"omitempty,max=4000"`
	Difficulty  string        `json:"difficulty,omitempty" yaml:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
	Subject     string        `json:"subject,omitempty" yaml:"subject" binding:"omitempty,max=120"`
	Topic       string        `json:"topic,omitempty" yaml:"topic" binding:"omitempty,max=120"`
	Image       string        `json:"image,omitempty" yaml:"image" binding:"omitempty,url"`
	Marks       float64       `json:"marks" yaml:"marks" binding:"min=0"`
	Order       int           `json:"order" yaml:"order" binding:"min=0"`
	Options     []OptionInput `json:"options" yaml:"options" binding:"required,min=2,max=6,dive"`
}

// CorrectCount reports how many options are flagged correct.
func (r *CreateQuestionRequest) CorrectCount() int {
	n := 0
	for _, o := range r.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// BulkQuestionsRequest is the upstream body for a bulk question upload.
type BulkQuestionsRequest struct {
	Questions []CreateQuestionRequest `json:"questions"`
}

// ImportRowError describes one rejected row of a bulk upload.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarizes a bulk upload.
type ImportReport struct {
	TotalRows   int              `json:"totalRows"`
	SuccessRows int              `json:"successRows"`
	FailedRows  int              `json:"failedRows"`
	Errors      []ImportRowError `json:"errors"`
}
