package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
	"github.com/qrchat-dev/qrchat/backend/pkg/utils"
)

// Handler 聊天会话与消息的HTTP处理器
type Handler struct {
	store *store.Store
}

// New 创建聊天处理器
func New(s *store.Store) *Handler {
	return &Handler{store: s}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleSession)
	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)
	r.Post("/messages/{messageID}/translation", h.handleSaveTranslation)
}

// handleSession 获取或创建 host+guest 对应的会话
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		HostID  string `json:"host_id"`
		GuestID string `json:"guest_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.HostID == "" {
		utils.RespondError(w, http.StatusBadRequest, "host_id is required")
		return
	}

	if _, err := h.store.GetHost(r.Context(), payload.HostID); err != nil {
		if errors.Is(err, store.ErrHostNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "host not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to look up host")
		return
	}

	session, isNew, err := h.store.GetOrCreateSession(r.Context(), payload.HostID, payload.GuestID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, status, map[string]any{
		"session":        session,
		"is_new_session": isNew,
	})
}

// handleListMessages 按 since_id 游标返回会话消息
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := h.store.ListMessagesSince(r.Context(), sessionID, r.URL.Query().Get("since_id"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleSendMessage 保存消息
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID      string `json:"session_id"`
		Content        string `json:"content"`
		Sender         string `json:"sender"`
		SourceLanguage string `json:"source_language"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Content == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if payload.Sender != chatmodel.SenderHost && payload.Sender != chatmodel.SenderGuest {
		utils.RespondError(w, http.StatusBadRequest, "sender must be host or guest")
		return
	}

	msg, err := h.store.InsertMessage(r.Context(), payload.SessionID, payload.Sender, payload.Content, payload.SourceLanguage)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, msg)
}

// handleSaveTranslation 客户端回退路径持久化翻译结果
func (h *Handler) handleSaveTranslation(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		TranslatedText string `json:"translated_text"`
		Status         string `json:"status"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Status != chatmodel.TranslationCompleted && payload.Status != chatmodel.TranslationError {
		utils.RespondError(w, http.StatusBadRequest, "status must be completed or error")
		return
	}

	err := h.store.UpdateMessageTranslation(r.Context(), messageID, payload.TranslatedText, payload.Status)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": payload.Status})
	case errors.Is(err, store.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, store.ErrStatusFinal):
		// 重复提交视为成功，状态不回退
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "unchanged"})
	default:
		utils.RespondError(w, http.StatusInternalServerError, "failed to save translation")
	}
}
