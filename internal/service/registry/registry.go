package registry

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = apperr.NotFound("Conversation not found")
	ErrUnauthorized    = apperr.Unauthorized("Unauthorized access to conversation")
	ErrInvalidSession  = apperr.Validation("session requires conversation, assistant and owner ids")
)

// Store is the session registry contract. It is the only place ownership is checked.
type Store interface {
	Put(ctx context.Context, session chat.Session) error
	Get(ctx context.Context, conversationID string) (chat.Session, error)
	ListByUser(ctx context.Context, userID string) ([]chat.Session, error)
	Remove(ctx context.Context, conversationID string) error
	Authorize(ctx context.Context, conversationID, userID string) (chat.Session, error)
}

// MemoryStore keeps sessions in process memory behind a single lock.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	order    []string
}

// NewMemoryStore returns an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
	}
}

// Put inserts or overwrites the session keyed by its conversation id.
// An overwrite keeps the original listing position.
func (s *MemoryStore) Put(_ context.Context, session chat.Session) error {
	if session.ConversationID == "" || session.AssistantID == "" || session.OwnerUserID == "" {
		return ErrInvalidSession
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ConversationID]; !exists {
		s.order = append(s.order, session.ConversationID)
	}
	s.sessions[session.ConversationID] = session
	return nil
}

// Get retrieves a session by conversation id.
func (s *MemoryStore) Get(_ context.Context, conversationID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[conversationID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// ListByUser returns the sessions owned by userID in insertion order.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make([]chat.Session, 0)
	for _, id := range s.order {
		session := s.sessions[id]
		if session.OwnerUserID == userID {
			owned = append(owned, session)
		}
	}
	return owned, nil
}

// Remove deletes the session for conversationID.
func (s *MemoryStore) Remove(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conversationID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, conversationID)
	for i, id := range s.order {
		if id == conversationID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Authorize checks that userID owns conversationID and returns the session on success.
func (s *MemoryStore) Authorize(_ context.Context, conversationID, userID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[conversationID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	if session.OwnerUserID != userID {
		return chat.Session{}, ErrUnauthorized
	}
	return session, nil
}

// Len reports how many sessions are registered.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
