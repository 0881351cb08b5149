package notification

import (
	"encoding/json"
	"time"
)

// Type enumerates the notification kinds the client understands. The set is
// closed: new kinds get a constant and a constructor here, so consumers can
// switch exhaustively instead of matching loose strings.
type Type string

const (
	TypeNewPost         Type = "NEW_POST"
	TypeNewConversation Type = "NEW_CONVERSATION"
	TypeNewMessage      Type = "NEW_MESSAGE"
)

// Envelope is the wire shape of every notification: {type, payload}.
type Envelope struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// PostPayload announces a new post in a group the recipient belongs to.
type PostPayload struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationPayload announces a direct channel the recipient was just
// added to. The client uses ID to register the membership locally.
type ConversationPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsDirect bool   `json:"is_direct"`
}

// MessagePayload announces chat activity in one of the recipient's channels
// without carrying the message body.
type MessagePayload struct {
	GroupID int64 `json:"group_id"`
}

func NewPost(p PostPayload) Envelope {
	return Envelope{Type: TypeNewPost, Payload: p}
}

func NewConversation(p ConversationPayload) Envelope {
	return Envelope{Type: TypeNewConversation, Payload: p}
}

func NewMessage(p MessagePayload) Envelope {
	return Envelope{Type: TypeNewMessage, Payload: p}
}
