package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/feynman-tutor/backend/internal/apperr"
	"github.com/zhouzirui/feynman-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/tutor"
	"github.com/zhouzirui/feynman-tutor/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// TutorService 抽象会话编排逻辑，便于测试与替换实现
type TutorService interface {
	CreateSession(ctx context.Context, in tutor.CreateSessionInput) (tutor.CreateSessionResult, error)
	SendMessage(ctx context.Context, in tutor.SendMessageInput) (tutor.SendMessageResult, error)
	ListConversations(ctx context.Context, userID string) (map[string]chat.Summary, error)
	DeleteSession(ctx context.Context, conversationID, userID string) error
}

// Handler 学习会话的HTTP处理器
type Handler struct {
	tutorSvc TutorService
}

// New 创建会话处理器
func New(tutorSvc TutorService) *Handler {
	return &Handler{tutorSvc: tutorSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create_assistant", h.handleCreateAssistant)
	r.Post("/send_message", h.handleSendMessage)
	r.Get("/conversations/{userID}", h.handleListConversations)
	r.Delete("/conversation/{conversationID}", h.handleDeleteConversation)
}

// handleCreateAssistant 为指定主题创建助手与会话
func (h *Handler) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Topic           string `json:"topic"`
		DifficultyLevel string `json:"difficulty_level"`
		UserID          string `json:"user_id"`
	}

	if err := decodeBody(w, r, &payload, false); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	result, err := h.tutorSvc.CreateSession(r.Context(), tutor.CreateSessionInput{
		Topic:           payload.Topic,
		DifficultyLevel: payload.DifficultyLevel,
		UserID:          payload.UserID,
	})
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleSendMessage 转发用户消息并返回助手回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
	}

	if err := decodeBody(w, r, &payload, false); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	result, err := h.tutorSvc.SendMessage(r.Context(), tutor.SendMessageInput{
		ConversationID: payload.ConversationID,
		UserID:         payload.UserID,
		Message:        payload.Message,
	})
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleListConversations 列出用户的所有会话
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	conversations, err := h.tutorSvc.ListConversations(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleDeleteConversation 删除会话，先删除平台侧再删除本地记录
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(w, r, &payload, true); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	if err := h.tutorSvc.DeleteSession(r.Context(), conversationID, payload.UserID); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Conversation deleted",
	})
}

// decodeBody 解析JSON请求体，allowEmpty 为真时空请求体视为空对象
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}
