package model

// LeaderboardUser is the public profile shown next to a score.
type LeaderboardUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank             int             `json:"rank" binding:"min=1"`
	Score            float64         `json:"score"`
	TimeTakenMinutes float64         `json:"timeTakenMinutes" binding:"min=0"`
	User             LeaderboardUser `json:"user"`
}

// LeaderboardPage is one page of an exam's ranking plus the caller's own rank.
type LeaderboardPage struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard" binding:"dive"`
	Exam        *ExamSummary       `json:"exam,omitempty"`
	UserRank    *LeaderboardEntry  `json:"userRank,omitempty"`
	TotalPages  int                `json:"totalPages" binding:"min=0"`
}

// AnswerSheetItem is the per-question outcome of a submitted exam.
type AnswerSheetItem struct {
	Question         Question `json:"question"`
	SelectedOptionID string   `json:"selectedOptionId,omitempty"`
	CorrectOptionID  string   `json:"correctOptionId"`
	IsCorrect        bool     `json:"isCorrect"`
	Marks            float64  `json:"marks"`
}

// AnswerSheet is a user's graded exam.
type AnswerSheet struct {
	Exam  ExamSummary       `json:"exam"`
	Score float64           `json:"score"`
	Items []AnswerSheetItem `json:"items" binding:"dive"`
}
