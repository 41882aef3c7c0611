package backend

// createSessionResponse is returned by POST /session/start
type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// wireMessage is a message as exchanged with the backend
type wireMessage struct {
	SessionID string         `json:"session_id,omitempty"`
	Speaker   string         `json:"speaker"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// sessionResponse is returned by GET /session/{id}. Older backends keep the
// history under chat_history.
type sessionResponse struct {
	SessionID   string        `json:"session_id"`
	CreatedAt   string        `json:"created_at"`
	Title       string        `json:"title"`
	Messages    []wireMessage `json:"messages"`
	ChatHistory []wireMessage `json:"chat_history"`
}

func (r sessionResponse) history() []wireMessage {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return r.ChatHistory
}

// sessionListResponse wraps GET /sessions when the backend returns an object
type sessionListResponse struct {
	Sessions []sessionListEntry `json:"sessions"`
}

// sessionListEntry is one element of GET /sessions
type sessionListEntry struct {
	SessionID   string        `json:"session_id"`
	ID          string        `json:"id"`
	CreatedAt   string        `json:"created_at"`
	Title       string        `json:"title"`
	Preview     string        `json:"preview"`
	Messages    []wireMessage `json:"messages"`
	ChatHistory []wireMessage `json:"chat_history"`
}

// renameRequest is the body of PATCH /session/{id}
type renameRequest struct {
	Title string `json:"title"`
}

// errorResponse is the FastAPI error envelope
type errorResponse struct {
	Detail any `json:"detail"`
}

// HealthStatus is returned by the health endpoints
type HealthStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}
