package vapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
)

type recordedCall struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakePlatform struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakePlatform) record(r *http.Request) map[string]any {
	body := map[string]any{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	f.mu.Unlock()
	return body
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assistant", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusCreated, map[string]string{"id": "asst-1"})
	})
	mux.HandleFunc("POST /conversation", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusCreated, map[string]string{"id": "conv-1"})
	})
	mux.HandleFunc("POST /conversation/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		if r.PathValue("id") != "conv-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Conversation not found"})
			return
		}
		if body["role"] == "assistant" {
			writeJSON(w, http.StatusOK, map[string]string{"id": "msg-2", "content": "Chlorophyll absorbs light."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "msg-1"})
	})
	mux.HandleFunc("DELETE /conversation/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "conv-1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": []string{"conversation already deleted"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /assistant/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "asst-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Assistant not found"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestClient(t *testing.T) (*Client, *fakePlatform) {
	t.Helper()
	platform := &fakePlatform{}
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL: srv.URL + "/",
		APIKey:  "secret",
		Model:   "anthropic/claude-3-opus-20240229",
	}, assistant.NewInstructionBuilder(""))
	require.NoError(t, err)
	return client, platform
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}

func TestCreateAssistantSendsRenderedInstructions(t *testing.T) {
	client, platform := newTestClient(t)

	id, err := client.CreateAssistant(context.Background(), "Photosynthesis", "")
	require.NoError(t, err)
	require.Equal(t, "asst-1", id)

	require.Len(t, platform.calls, 1)
	call := platform.calls[0]
	require.Equal(t, "Bearer secret", call.Auth)
	require.Equal(t, "Feynman Learning Assistant - Photosynthesis", call.Body["name"])
	require.Equal(t, "anthropic/claude-3-opus-20240229", call.Body["model"])
	require.Contains(t, call.Body["instructions"], "teaching about Photosynthesis at a beginner level")
}

func TestConversationLifecycle(t *testing.T) {
	client, platform := newTestClient(t)
	ctx := context.Background()

	convID, err := client.CreateConversation(ctx, "asst-1", chat.ConversationMetadata{UserID: "u1", Topic: "Photosynthesis"})
	require.NoError(t, err)
	require.Equal(t, "conv-1", convID)

	require.NoError(t, client.PostUserMessage(ctx, convID, "Explain chlorophyll"))

	reply, err := client.FetchAssistantReply(ctx, convID)
	require.NoError(t, err)
	require.Equal(t, "msg-2", reply.MessageID)
	require.Equal(t, "Chlorophyll absorbs light.", reply.Content)

	require.NoError(t, client.DeleteConversation(ctx, convID))

	require.Len(t, platform.calls, 4)
	require.Equal(t, "asst-1", platform.calls[0].Body["assistantId"])
	metadata, ok := platform.calls[0].Body["metadata"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "u1", metadata["user_id"])
	require.Equal(t, "user", platform.calls[1].Body["role"])
	require.Equal(t, "Explain chlorophyll", platform.calls[1].Body["content"])
	require.Equal(t, "assistant", platform.calls[2].Body["role"])
	require.Equal(t, http.MethodDelete, platform.calls[3].Method)
}

func TestDeleteAssistant(t *testing.T) {
	client, platform := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DeleteAssistant(ctx, "asst-1"))
	require.Len(t, platform.calls, 1)
	require.Equal(t, http.MethodDelete, platform.calls[0].Method)
	require.Equal(t, "/assistant/asst-1", platform.calls[0].Path)
	require.Equal(t, "Bearer secret", platform.calls[0].Auth)

	err := client.DeleteAssistant(ctx, "asst-gone")
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	require.Contains(t, err.Error(), "Assistant not found")
}

func TestPlatformRejectionIsUpstreamError(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	err := client.PostUserMessage(ctx, "conv-missing", "hello")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	require.Contains(t, err.Error(), "404")
	require.Contains(t, err.Error(), "Conversation not found")

	err = client.DeleteConversation(ctx, "conv-missing")
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	require.Contains(t, err.Error(), "conversation already deleted")
}

func TestTransportFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)

	_, err = client.CreateConversation(context.Background(), "asst-1", chat.ConversationMetadata{})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindUpstream))
}
