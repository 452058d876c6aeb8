package translate

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	translateservice "github.com/qrchat-dev/qrchat/backend/internal/service/translate"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
	"github.com/qrchat-dev/qrchat/backend/pkg/utils"
)

// Handler 翻译回退端点的HTTP处理器
type Handler struct {
	svc *translateservice.Service
}

// New 创建翻译处理器
func New(svc *translateservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册翻译相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/translate", h.handleTranslate)
}

// handleTranslate 中继不可用时的请求/响应翻译路径
func (h *Handler) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text           string `json:"text"`
		SourceLanguage string `json:"source_language"`
		TargetLanguage string `json:"target_language"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Text == "" || payload.TargetLanguage == "" {
		utils.RespondError(w, http.StatusBadRequest, "text and target_language are required")
		return
	}

	translated, err := h.svc.Translate(r.Context(), payload.Text, payload.SourceLanguage, payload.TargetLanguage)
	if err != nil {
		logger.Warnf("[translate] fallback request failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "translation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"translated_text": translated})
}
