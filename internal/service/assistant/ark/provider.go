package ark

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
)

const (
	platformName = "ark"
	historyLimit = 20
)

var (
	errAssistantNotFound    = errors.New("assistant not found")
	errConversationNotFound = errors.New("conversation not found")
	errNoPendingUserTurn    = errors.New("no user message awaiting a reply")
)

type assistantRecord struct {
	spec assistant.Spec
}

type conversationRecord struct {
	assistantID string
	metadata    chat.ConversationMetadata
	turns       []*schema.Message
}

// Provider plays the assistant platform in-process on top of an Ark chat model.
// The assistants and conversations it holds are platform state, separate from the session registry.
type Provider struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	instructions *assistant.InstructionBuilder

	mu            sync.Mutex
	assistants    map[string]assistantRecord
	conversations map[string]*conversationRecord
}

var _ assistant.Gateway = (*Provider)(nil)

// NewProvider compiles the reply chain around chatModel.
func NewProvider(ctx context.Context, chatModel model.BaseChatModel, instructions *assistant.InstructionBuilder) (*Provider, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if instructions == nil {
		instructions = assistant.NewInstructionBuilder("")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{instructions}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Provider{
		chain:         runnable,
		instructions:  instructions,
		assistants:    make(map[string]assistantRecord),
		conversations: make(map[string]*conversationRecord),
	}, nil
}

// CreateAssistant stores rendered instructions under a new assistant id.
func (p *Provider) CreateAssistant(ctx context.Context, topic, difficultyLevel string) (string, error) {
	spec, err := p.instructions.Build(ctx, topic, difficultyLevel)
	if err != nil {
		return "", apperr.Upstream("failed to build assistant instructions", err)
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.assistants[id] = assistantRecord{spec: spec}
	p.mu.Unlock()

	log.Debug().Str("component", platformName).Str("assistant_id", id).Str("topic", spec.Topic).Msg("assistant created")
	return id, nil
}

// CreateConversation opens an empty conversation for assistantID.
func (p *Provider) CreateConversation(_ context.Context, assistantID string, metadata chat.ConversationMetadata) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.assistants[assistantID]; !ok {
		return "", apperr.Upstream(platformName, errors.Wrapf(errAssistantNotFound, "assistant %s", assistantID))
	}

	id := uuid.NewString()
	p.conversations[id] = &conversationRecord{
		assistantID: assistantID,
		metadata:    metadata,
		turns:       make([]*schema.Message, 0, 16),
	}
	return id, nil
}

// PostUserMessage appends a user turn.
func (p *Provider) PostUserMessage(_ context.Context, conversationID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.conversations[conversationID]
	if !ok {
		return apperr.Upstream(platformName, errors.Wrapf(errConversationNotFound, "conversation %s", conversationID))
	}
	conv.turns = append(conv.turns, schema.UserMessage(text))
	return nil
}

// FetchAssistantReply runs the chat model over the conversation and records its reply.
func (p *Provider) FetchAssistantReply(ctx context.Context, conversationID string) (chat.Reply, error) {
	input, err := p.chainInput(conversationID)
	if err != nil {
		return chat.Reply{}, apperr.Upstream(platformName, err)
	}

	response, err := p.chain.Invoke(ctx, input)
	if err != nil {
		return chat.Reply{}, apperr.Upstream(platformName, errors.Wrap(err, "failed to run reply chain"))
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return chat.Reply{}, apperr.Upstream(platformName, errors.New("model returned an empty reply"))
	}

	reply := chat.Reply{MessageID: uuid.NewString(), Content: response.Content}

	p.mu.Lock()
	if conv, ok := p.conversations[conversationID]; ok {
		conv.turns = append(conv.turns, schema.AssistantMessage(response.Content, nil))
	}
	p.mu.Unlock()

	log.Debug().
		Str("component", platformName).
		Str("conversation_id", conversationID).
		Int("length", len(response.Content)).
		Msg("generated reply")
	return reply, nil
}

// DeleteConversation drops the conversation. Unknown ids are rejected.
func (p *Provider) DeleteConversation(_ context.Context, conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conversations[conversationID]; !ok {
		return apperr.Upstream(platformName, errors.Wrapf(errConversationNotFound, "conversation %s", conversationID))
	}
	delete(p.conversations, conversationID)
	return nil
}

// DeleteAssistant drops the assistant's instructions. Unknown ids are rejected.
func (p *Provider) DeleteAssistant(_ context.Context, assistantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.assistants[assistantID]; !ok {
		return apperr.Upstream(platformName, errors.Wrapf(errAssistantNotFound, "assistant %s", assistantID))
	}
	delete(p.assistants, assistantID)
	return nil
}

func (p *Provider) chainInput(conversationID string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.conversations[conversationID]
	if !ok {
		return nil, errors.Wrapf(errConversationNotFound, "conversation %s", conversationID)
	}
	if len(conv.turns) == 0 || conv.turns[len(conv.turns)-1].Role != schema.User {
		return nil, errNoPendingUserTurn
	}
	record, ok := p.assistants[conv.assistantID]
	if !ok {
		return nil, errors.Wrapf(errAssistantNotFound, "assistant %s", conv.assistantID)
	}

	return map[string]any{
		"instructions": record.spec.Instructions,
		"history":      recentTurns(conv.turns, historyLimit),
	}, nil
}

func recentTurns(turns []*schema.Message, limit int) []*schema.Message {
	start := 0
	if len(turns) > limit {
		start = len(turns) - limit
	}
	history := make([]*schema.Message, len(turns)-start)
	copy(history, turns[start:])
	return history
}
