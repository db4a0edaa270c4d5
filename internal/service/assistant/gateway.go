// Package assistant describes the façade over the external assistant platform.
// Implementations live in the vapi and ark subpackages.
package assistant

import (
	"context"

	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
)

// Gateway translates local operations into calls against the assistant platform.
// Every failure returned by an implementation is tagged apperr.KindUpstream.
type Gateway interface {
	CreateAssistant(ctx context.Context, topic, difficultyLevel string) (string, error)
	CreateConversation(ctx context.Context, assistantID string, metadata chat.ConversationMetadata) (string, error)
	PostUserMessage(ctx context.Context, conversationID, text string) error
	FetchAssistantReply(ctx context.Context, conversationID string) (chat.Reply, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	// DeleteAssistant is best effort; callers log its failure and carry on.
	DeleteAssistant(ctx context.Context, assistantID string) error
}
