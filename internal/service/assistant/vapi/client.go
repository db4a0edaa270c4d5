package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
)

const (
	defaultBaseURL = "https://api.vapi.ai"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
	platformName   = "vapi"
)

// Config describes how to reach the platform.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the REST implementation of assistant.Gateway.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	httpClient   *http.Client
	instructions *assistant.InstructionBuilder
}

var _ assistant.Gateway = (*Client)(nil)

// NewClient validates cfg and returns a platform client.
func NewClient(cfg Config, instructions *assistant.InstructionBuilder) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("vapi api key is required")
	}
	if instructions == nil {
		instructions = assistant.NewInstructionBuilder("")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid vapi base url %q", baseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		httpClient:   httpClient,
		instructions: instructions,
	}, nil
}

type createAssistantRequest struct {
	Name         string            `json:"name"`
	Model        string            `json:"model,omitempty"`
	Instructions string            `json:"instructions"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type createConversationRequest struct {
	AssistantID string                    `json:"assistantId"`
	Metadata    chat.ConversationMetadata `json:"metadata"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type resource struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type errorBody struct {
	Message any    `json:"message"`
	Error   string `json:"error"`
}

// CreateAssistant provisions a Feynman assistant for topic.
func (c *Client) CreateAssistant(ctx context.Context, topic, difficultyLevel string) (string, error) {
	spec, err := c.instructions.Build(ctx, topic, difficultyLevel)
	if err != nil {
		return "", apperr.Upstream("failed to build assistant instructions", err)
	}

	var created resource
	err = c.do(ctx, http.MethodPost, "/assistant", createAssistantRequest{
		Name:         spec.Name,
		Model:        c.model,
		Instructions: spec.Instructions,
		Metadata: map[string]string{
			"topic":            spec.Topic,
			"difficulty_level": spec.DifficultyLevel,
		},
	}, &created)
	if err != nil {
		return "", apperr.Upstream(platformName, err)
	}
	if created.ID == "" {
		return "", apperr.Upstream(platformName, errors.New("platform returned an empty assistant id"))
	}

	log.Debug().Str("assistant_id", created.ID).Str("topic", spec.Topic).Msg("assistant created")
	return created.ID, nil
}

// CreateConversation starts a conversation bound to assistantID.
func (c *Client) CreateConversation(ctx context.Context, assistantID string, metadata chat.ConversationMetadata) (string, error) {
	var created resource
	err := c.do(ctx, http.MethodPost, "/conversation", createConversationRequest{
		AssistantID: assistantID,
		Metadata:    metadata,
	}, &created)
	if err != nil {
		return "", apperr.Upstream(platformName, err)
	}
	if created.ID == "" {
		return "", apperr.Upstream(platformName, errors.New("platform returned an empty conversation id"))
	}
	return created.ID, nil
}

// PostUserMessage appends a user turn to the conversation.
func (c *Client) PostUserMessage(ctx context.Context, conversationID, text string) error {
	err := c.do(ctx, http.MethodPost, messagesPath(conversationID), messageRequest{
		Role:    "user",
		Content: text,
	}, nil)
	if err != nil {
		return apperr.Upstream(platformName, err)
	}
	return nil
}

// FetchAssistantReply asks the platform for the assistant's next turn.
func (c *Client) FetchAssistantReply(ctx context.Context, conversationID string) (chat.Reply, error) {
	var reply resource
	if err := c.do(ctx, http.MethodPost, messagesPath(conversationID), messageRequest{Role: "assistant"}, &reply); err != nil {
		return chat.Reply{}, apperr.Upstream(platformName, err)
	}
	if reply.ID == "" {
		return chat.Reply{}, apperr.Upstream(platformName, errors.New("platform returned an empty message id"))
	}
	return chat.Reply{MessageID: reply.ID, Content: reply.Content}, nil
}

// DeleteConversation removes the conversation on the platform. A rejection is an error.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversation/"+url.PathEscape(conversationID), nil, nil); err != nil {
		return apperr.Upstream(platformName, err)
	}
	return nil
}

// DeleteAssistant removes an assistant that no longer backs a conversation.
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	if err := c.do(ctx, http.MethodDelete, "/assistant/"+url.PathEscape(assistantID), nil, nil); err != nil {
		return apperr.Upstream(platformName, err)
	}
	return nil
}

func messagesPath(conversationID string) string {
	return "/conversation/" + url.PathEscape(conversationID) + "/message"
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("component", "vapi").
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("platform call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if msg := describeMessage(parsed.Message); msg != "" {
			return errors.Errorf("platform returned %d: %s", resp.StatusCode, msg)
		}
		if parsed.Error != "" {
			return errors.Errorf("platform returned %d: %s", resp.StatusCode, parsed.Error)
		}
	}

	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
		return errors.Errorf("platform returned %d: %s", resp.StatusCode, text)
	}
	return errors.Errorf("platform returned %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// describeMessage flattens the platform's message field, which is a string or a list of strings.
func describeMessage(message any) string {
	switch v := message.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strings.TrimSpace(fmt.Sprint(item)))
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}
