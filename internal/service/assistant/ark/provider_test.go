package ark

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
)

type fakeChatModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestProvider(t *testing.T, chatModel *fakeChatModel) *Provider {
	t.Helper()
	provider, err := NewProvider(context.Background(), chatModel, assistant.NewInstructionBuilder(""))
	require.NoError(t, err)
	return provider
}

func TestProviderConversationRoundTrip(t *testing.T) {
	chatModel := &fakeChatModel{reply: "Chlorophyll is the green pigment that captures light."}
	provider := newTestProvider(t, chatModel)
	ctx := context.Background()

	assistantID, err := provider.CreateAssistant(ctx, "Photosynthesis", "beginner")
	require.NoError(t, err)
	require.NotEmpty(t, assistantID)

	convID, err := provider.CreateConversation(ctx, assistantID, chat.ConversationMetadata{UserID: "u1", Topic: "Photosynthesis"})
	require.NoError(t, err)

	require.NoError(t, provider.PostUserMessage(ctx, convID, "Explain chlorophyll"))
	reply, err := provider.FetchAssistantReply(ctx, convID)
	require.NoError(t, err)
	require.NotEmpty(t, reply.MessageID)
	require.Equal(t, chatModel.reply, reply.Content)

	require.Len(t, chatModel.inputs, 1)
	sent := chatModel.inputs[0]
	require.Len(t, sent, 2)
	require.Equal(t, schema.System, sent[0].Role)
	require.Contains(t, sent[0].Content, "teaching about Photosynthesis at a beginner level")
	require.Equal(t, schema.User, sent[1].Role)
	require.Equal(t, "Explain chlorophyll", sent[1].Content)

	require.NoError(t, provider.PostUserMessage(ctx, convID, "What about carotenoids?"))
	_, err = provider.FetchAssistantReply(ctx, convID)
	require.NoError(t, err)
	require.Len(t, chatModel.inputs[1], 4)
}

func TestProviderFetchRequiresPendingUserTurn(t *testing.T) {
	provider := newTestProvider(t, &fakeChatModel{reply: "hi"})
	ctx := context.Background()

	assistantID, err := provider.CreateAssistant(ctx, "Gravity", "")
	require.NoError(t, err)
	convID, err := provider.CreateConversation(ctx, assistantID, chat.ConversationMetadata{UserID: "u1"})
	require.NoError(t, err)

	_, err = provider.FetchAssistantReply(ctx, convID)
	require.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestProviderModelFailureIsUpstream(t *testing.T) {
	provider := newTestProvider(t, &fakeChatModel{err: errors.New("quota exceeded")})
	ctx := context.Background()

	assistantID, err := provider.CreateAssistant(ctx, "Gravity", "")
	require.NoError(t, err)
	convID, err := provider.CreateConversation(ctx, assistantID, chat.ConversationMetadata{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, provider.PostUserMessage(ctx, convID, "why do apples fall?"))

	_, err = provider.FetchAssistantReply(ctx, convID)
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestProviderRejectsUnknownIDs(t *testing.T) {
	provider := newTestProvider(t, &fakeChatModel{reply: "hi"})
	ctx := context.Background()

	_, err := provider.CreateConversation(ctx, "missing", chat.ConversationMetadata{})
	require.True(t, apperr.Is(err, apperr.KindUpstream))

	require.True(t, apperr.Is(provider.PostUserMessage(ctx, "missing", "hi"), apperr.KindUpstream))
	require.True(t, apperr.Is(provider.DeleteConversation(ctx, "missing"), apperr.KindUpstream))
}

func TestProviderDeleteConversation(t *testing.T) {
	provider := newTestProvider(t, &fakeChatModel{reply: "hi"})
	ctx := context.Background()

	assistantID, err := provider.CreateAssistant(ctx, "Gravity", "")
	require.NoError(t, err)
	convID, err := provider.CreateConversation(ctx, assistantID, chat.ConversationMetadata{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, provider.DeleteConversation(ctx, convID))
	require.Error(t, provider.DeleteConversation(ctx, convID))
	require.Error(t, provider.PostUserMessage(ctx, convID, "still there?"))

	require.NoError(t, provider.DeleteAssistant(ctx, assistantID))
	require.True(t, apperr.Is(provider.DeleteAssistant(ctx, assistantID), apperr.KindUpstream))
	_, err = provider.CreateConversation(ctx, assistantID, chat.ConversationMetadata{UserID: "u1"})
	require.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestNewProviderRequiresModel(t *testing.T) {
	_, err := NewProvider(context.Background(), nil, nil)
	require.Error(t, err)
}
