package chat

// Reply is an assistant turn returned by the platform.
type Reply struct {
	MessageID string `json:"message_id"`
	Content   string `json:"response"`
}

// ConversationMetadata travels with a new conversation for traceability on the platform side.
type ConversationMetadata struct {
	UserID string `json:"user_id"`
	Topic  string `json:"topic"`
}
