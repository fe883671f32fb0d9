package ws

type EventType string

const (
	EventNewMessage  EventType = "new_message"
	EventMessageRead EventType = "message_read"
	EventError       EventType = "error"
)

// IncomingEvent is what the client sends to the server. A connection is
// bound to one room at upgrade time, so frames carry no room id.
type IncomingEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// OutgoingEvent is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ReadPayload is broadcast when a member marks the room as read.
type ReadPayload struct {
	RoomID   string `json:"room_id"`
	MemberID string `json:"member_id"`
}
