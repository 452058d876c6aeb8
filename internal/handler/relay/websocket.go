package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	relayproto "github.com/qrchat-dev/qrchat/backend/internal/relay"
	translateservice "github.com/qrchat-dev/qrchat/backend/internal/service/translate"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler WebSocket中继处理器，承接翻译请求帧并回推结果
type Handler struct {
	store    *store.Store
	svc      *translateservice.Service
	upgrader websocket.Upgrader
}

// New 创建中继处理器
func New(s *store.Store, svc *translateservice.Service) *Handler {
	return &Handler{
		store: s,
		svc:   svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册中继路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/relay", h.handleRelay)
}

// connectionState 单条中继连接的会话绑定
type connectionState struct {
	sessionID    string
	userLanguage string
}

// handleRelay 处理一条中继连接的完整生命周期
func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := &connectionState{}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warnf("[relay] read error session=%s: %v", state.sessionID, err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))

			frame, err := relayproto.ParseClientFrame(data)
			if err != nil {
				// 协议错误只记录，不断开连接
				logger.Warnf("[relay] malformed frame session=%s: %v", state.sessionID, err)
				continue
			}

			h.handleFrame(ctx, conn, state, frame)
		}
	}
}

// handleFrame 按帧类型分发
func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, state *connectionState, frame relayproto.Frame) {
	switch fr := frame.(type) {
	case relayproto.ConnectFrame:
		h.handleConnect(ctx, conn, state, fr)
	case relayproto.HeartbeatFrame:
		// 原样回显，客户端不需要应答
		h.send(conn, relayproto.ServerFrame{Action: relayproto.ActionHeartbeat})
	case relayproto.TranslateFrame:
		h.handleTranslate(ctx, conn, state, fr)
	case relayproto.UnknownFrame:
		logger.Warnf("[relay] unknown action %q session=%s", fr.Action, state.sessionID)
	}
}

// handleConnect 校验会话并完成握手
func (h *Handler) handleConnect(ctx context.Context, conn *websocket.Conn, state *connectionState, frame relayproto.ConnectFrame) {
	if frame.SessionID == "" {
		h.send(conn, relayproto.ServerFrame{
			Action: relayproto.ActionConnectResult,
			Status: relayproto.StatusError,
			Error:  "session_id is required",
		})
		return
	}

	if _, err := h.store.GetSession(ctx, frame.SessionID); err != nil {
		h.send(conn, relayproto.ServerFrame{
			Action:    relayproto.ActionConnectResult,
			Status:    relayproto.StatusError,
			SessionID: frame.SessionID,
			Error:     "session not found",
		})
		return
	}

	state.sessionID = frame.SessionID
	state.userLanguage = frame.UserLanguage

	logger.Infof("[relay] session connected session=%s language=%s", state.sessionID, state.userLanguage)

	h.send(conn, relayproto.ServerFrame{
		Action:    relayproto.ActionConnectResult,
		Status:    "connected",
		SessionID: state.sessionID,
	})
}

// handleTranslate 执行翻译并回推结果帧；结果持久化由翻译服务完成
func (h *Handler) handleTranslate(ctx context.Context, conn *websocket.Conn, state *connectionState, frame relayproto.TranslateFrame) {
	if state.sessionID == "" {
		h.send(conn, relayproto.ServerFrame{
			Action: relayproto.ActionStatus,
			Status: relayproto.StatusError,
			Error:  "connect first",
		})
		return
	}

	target := frame.TargetLanguage
	if target == "" {
		target = state.userLanguage
	}

	translated, err := h.svc.TranslateMessage(ctx, frame.MessageID, frame.SourceText, frame.SourceLanguage, target)
	if err != nil {
		logger.Warnf("[relay] translate failed session=%s message=%s: %v", state.sessionID, frame.MessageID, err)
		h.send(conn, relayproto.ServerFrame{
			Action:    relayproto.ActionTranslateResult,
			Status:    relayproto.StatusError,
			MessageID: frame.MessageID,
			Error:     "translation failed",
		})
		return
	}

	h.send(conn, relayproto.ServerFrame{
		Action:         relayproto.ActionTranslateResult,
		Status:         relayproto.StatusSuccess,
		MessageID:      frame.MessageID,
		TranslatedText: translated,
		SourceLanguage: frame.SourceLanguage,
		TargetLanguage: target,
	})
}

func (h *Handler) send(conn *websocket.Conn, frame relayproto.ServerFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		logger.Warnf("[relay] write failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
