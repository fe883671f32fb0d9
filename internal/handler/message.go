package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatserver/internal/middleware"
	"github.com/chatserver/internal/service"
	"github.com/go-chi/chi/v5"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// Send принимает сообщение в комнату от текущего участника.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomID := chi.URLParam(r, "roomId")
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := h.messages.Send(r.Context(), roomID, memberID, req.Content)
	if err != nil {
		writeServiceError(w, err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// History возвращает историю комнаты от старых к новым. Только участникам.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomID := chi.URLParam(r, "roomId")
	views, err := h.messages.History(r.Context(), roomID, memberID)
	if err != nil {
		writeServiceError(w, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// MarkRead отмечает все сообщения комнаты прочитанными для текущего участника.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomID := chi.URLParam(r, "roomId")
	if err := h.messages.MarkRead(r.Context(), roomID, memberID); err != nil {
		writeServiceError(w, err, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
