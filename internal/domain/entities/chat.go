package entities

// ResponseModeBlocking asks the AI backend for a single synchronous answer.
const ResponseModeBlocking = "blocking"

// ChatRequest is an outbound message to the conversational AI backend.
type ChatRequest struct {
	Inputs         map[string]interface{} `json:"inputs"`
	Query          string                 `json:"query"`
	ResponseMode   string                 `json:"response_mode"`
	User           string                 `json:"user"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

// ChatReply is the AI backend's answer.
type ChatReply struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	MessageID      string `json:"message_id"`
}

// ManualQuery is an operator-supplied chat message that bypasses debouncing.
type ManualQuery struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	CameraID       string `json:"camera_id,omitempty"`
}

// RelayResult is the outcome of relaying a detection or a manual query.
type RelayResult struct {
	Debounced bool
	Detection *DetectionRecord
	Reply     *ChatReply
}
