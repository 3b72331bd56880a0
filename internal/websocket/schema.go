package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect  Action = "select"
	ActionPreview Action = "preview"
	ActionSubmit  Action = "submit"
	ActionPing    Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SelectRequest records an answer selection.
type SelectRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

// SubmitRequest is sent after the student confirms the submit dialog.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick       Event = "tick"
	EventTimeUp     Event = "time_up"
	EventSaved      Event = "saved"
	EventSaveFailed Event = "save_failed"
	EventSubmitted  Event = "submitted"
	EventState      Event = "state"
	EventPreview    Event = "preview"
	EventStats      Event = "stats"
	EventPong       Event = "pong"
	EventError      Event = "error"
)

// ServerEvent is every frame the server pushes. Data depends on Event.
type ServerEvent struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SavedData confirms one answer reached the backend.
type SavedData struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

// SaveFailedData reports an answer the backend never accepted.
type SaveFailedData struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	Reason     string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
