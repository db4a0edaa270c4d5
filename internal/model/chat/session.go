package chat

import "time"

// Session records which user owns a conversation held by the assistant platform.
type Session struct {
	ConversationID string    `json:"conversation_id"`
	AssistantID    string    `json:"assistant_id"`
	Topic          string    `json:"topic"`
	OwnerUserID    string    `json:"user_id"`
	CreatedAt      time.Time `json:"-"`
}

// Summary is the listing view of a session, keyed by conversation id in responses.
type Summary struct {
	AssistantID string `json:"assistant_id"`
	Topic       string `json:"topic"`
	UserID      string `json:"user_id"`
}

// Summary returns the listing view of s.
func (s Session) Summary() Summary {
	return Summary{
		AssistantID: s.AssistantID,
		Topic:       s.Topic,
		UserID:      s.OwnerUserID,
	}
}
