package chat

import "time"

// Author is the denormalized user projection embedded in every message
// (fetched via JOIN so the client never does a second lookup).
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Message is both the storage entity and the wire payload: what crosses the
// broker is exactly what reaches the client.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	GroupID   int64     `json:"group_id"`
	User      Author    `json:"user"`
}

// Conversation is a chat channel from one user's point of view: a hobby
// group or a direct 1:1 channel.
type Conversation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsDirect  bool      `json:"is_direct"`
	CreatedAt time.Time `json:"created_at"`
}
