package tutor

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/registry"
)

// CreateSessionInput is the validated payload of a new learning session.
type CreateSessionInput struct {
	Topic           string
	DifficultyLevel string
	UserID          string
}

// CreateSessionResult is returned once the session is registered.
type CreateSessionResult struct {
	ConversationID string `json:"conversation_id"`
	AssistantID    string `json:"assistant_id"`
	Topic          string `json:"topic"`
}

// SendMessageInput carries one user turn.
type SendMessageInput struct {
	ConversationID string
	UserID         string
	Message        string
}

// SendMessageResult carries the assistant's reply.
type SendMessageResult struct {
	Response       string `json:"response"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// Service orchestrates the session registry and the assistant gateway.
type Service struct {
	sessions registry.Store
	gateway  assistant.Gateway
	locks    *keyedMutex
}

// NewService wires the registry and gateway together.
func NewService(sessions registry.Store, gateway assistant.Gateway) *Service {
	return &Service{
		sessions: sessions,
		gateway:  gateway,
		locks:    newKeyedMutex(),
	}
}

// CreateSession provisions an assistant and a conversation, then registers the session.
// Nothing is registered unless both platform calls succeed.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return CreateSessionResult{}, apperr.Validation("Topic is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return CreateSessionResult{}, apperr.Validation("User ID is required")
	}

	assistantID, err := s.gateway.CreateAssistant(ctx, topic, in.DifficultyLevel)
	if err != nil {
		return CreateSessionResult{}, apperr.Upstream("Failed to create assistant", err)
	}

	conversationID, err := s.gateway.CreateConversation(ctx, assistantID, chat.ConversationMetadata{
		UserID: in.UserID,
		Topic:  topic,
	})
	if err != nil {
		s.releaseAssistant(ctx, assistantID)
		return CreateSessionResult{}, apperr.Upstream("Failed to create assistant", err)
	}

	session := chat.Session{
		ConversationID: conversationID,
		AssistantID:    assistantID,
		Topic:          topic,
		OwnerUserID:    in.UserID,
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return CreateSessionResult{}, apperr.Upstream("Failed to create assistant", err)
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("assistant_id", assistantID).
		Str("user_id", in.UserID).
		Msg("session created")

	return CreateSessionResult{
		ConversationID: conversationID,
		AssistantID:    assistantID,
		Topic:          topic,
	}, nil
}

// SendMessage relays a user turn and returns the assistant's reply.
// No platform call is made unless the caller owns the conversation. Turns on the same
// conversation are serialized so each reply answers its own message.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (SendMessageResult, error) {
	if strings.TrimSpace(in.ConversationID) == "" {
		return SendMessageResult{}, apperr.Validation("Conversation ID is required")
	}

	unlock := s.locks.Lock(in.ConversationID)
	defer unlock()

	if _, err := s.sessions.Authorize(ctx, in.ConversationID, in.UserID); err != nil {
		return SendMessageResult{}, err
	}
	if strings.TrimSpace(in.Message) == "" {
		return SendMessageResult{}, apperr.Validation("Message is required")
	}

	if err := s.gateway.PostUserMessage(ctx, in.ConversationID, in.Message); err != nil {
		return SendMessageResult{}, apperr.Upstream("Failed to process message", err)
	}

	reply, err := s.gateway.FetchAssistantReply(ctx, in.ConversationID)
	if err != nil {
		return SendMessageResult{}, apperr.Upstream("Failed to process message", err)
	}

	return SendMessageResult{
		Response:       reply.Content,
		MessageID:      reply.MessageID,
		ConversationID: in.ConversationID,
	}, nil
}

// ListConversations returns the caller's sessions keyed by conversation id.
func (s *Service) ListConversations(ctx context.Context, userID string) (map[string]chat.Summary, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Upstream("Failed to get conversations", err)
	}

	conversations := make(map[string]chat.Summary, len(sessions))
	for _, session := range sessions {
		conversations[session.ConversationID] = session.Summary()
	}
	return conversations, nil
}

// DeleteSession removes the conversation upstream first and locally second.
// Concurrent deletes of the same id are serialized so the loser observes NotFound.
func (s *Service) DeleteSession(ctx context.Context, conversationID, userID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	session, err := s.sessions.Authorize(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	if err := s.gateway.DeleteConversation(ctx, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("platform rejected conversation delete")
		return apperr.Upstream("Failed to delete conversation", err)
	}

	if err := s.sessions.Remove(ctx, conversationID); err != nil {
		return err
	}
	s.releaseAssistant(ctx, session.AssistantID)

	log.Info().Str("conversation_id", conversationID).Str("user_id", userID).Msg("session deleted")
	return nil
}

// releaseAssistant drops an assistant that no longer backs a session. Failures are only logged.
func (s *Service) releaseAssistant(ctx context.Context, assistantID string) {
	if err := s.gateway.DeleteAssistant(ctx, assistantID); err != nil {
		log.Warn().Err(err).Str("assistant_id", assistantID).Msg("failed to release assistant")
	}
}
