package domain

// Action websocket event name
type Action string

const (
	// JoinRoom inbound, enter a room and receive its snapshot
	JoinRoom Action = "join room"
	// SendMessage inbound, post a text message to a room
	SendMessage Action = "send message"

	// InitMessages outbound, active messages of the joined room
	InitMessages Action = "init messages"
	// NewMessageEvent outbound, a message published to the room
	NewMessageEvent Action = "new message"
	// ErrorAction outbound, failure reported to the originating connection only
	ErrorAction Action = "error"
)

// WSRequest websocket Request
type WSRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Room     string `json:"room"`
	Content  string `json:"content"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// NewMessageResponse wrap msg as a "new message" event
func NewMessageResponse(msg *Message) WSResponse {
	return WSResponse{
		Action:  string(NewMessageEvent),
		Success: true,
		Payload: map[string]interface{}{"message": msg},
	}
}

// InitMessagesResponse wrap a room snapshot as an "init messages" event
func InitMessagesResponse(room string, msgs []Message) WSResponse {
	if msgs == nil {
		msgs = []Message{}
	}
	return WSResponse{
		Action:  string(InitMessages),
		Success: true,
		Payload: map[string]interface{}{
			"room":     room,
			"messages": msgs,
		},
	}
}

// ErrorResponse wrap errMsg as an "error" event
func ErrorResponse(errMsg string) WSResponse {
	return WSResponse{
		Action:  string(ErrorAction),
		Success: false,
		Error:   errMsg,
	}
}
