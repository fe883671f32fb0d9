package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/middleware"
	"github.com/chatserver/internal/service"
	"github.com/chatserver/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	router         *ws.Router
	messages       *service.MessageService
	allowedOrigins string
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(router *ws.Router, messages *service.MessageService, allowedOrigins string) *WSHandler {
	return &WSHandler{router: router, messages: messages, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS апгрейдит соединение и подписывает его на комнату из URL.
// Подписка только для участников комнаты: чужим — 403 до апгрейда.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	if memberID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "roomId")
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ok, err := h.messages.IsParticipant(r.Context(), roomID, memberID)
	if err != nil {
		writeServiceError(w, err, "failed to check membership")
		return
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.router, conn, roomID, memberID)
	client.Start(ctx, cancel)
	h.router.Register(client)
}
