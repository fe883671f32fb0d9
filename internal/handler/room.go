package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatserver/internal/middleware"
	"github.com/chatserver/internal/service"
	"github.com/go-chi/chi/v5"
)

type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type CreateGroupRoomRequest struct {
	Name string `json:"name"`
}

// CreateGroupRoom создаёт групповую комнату; создатель сразу участник.
func (h *RoomHandler) CreateGroupRoom(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	var req CreateGroupRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	room, err := h.rooms.CreateGroupRoom(r.Context(), req.Name, memberID)
	if err != nil {
		writeServiceError(w, err, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListGroupRooms возвращает все групповые комнаты (каталог для вступления).
func (h *RoomHandler) ListGroupRooms(w http.ResponseWriter, r *http.Request) {
	roomList, err := h.rooms.ListGroupRooms(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, roomList)
}

// Join добавляет текущего участника в комнату. Повторное вступление — no-op.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomID := chi.URLParam(r, "roomId")
	if err := h.rooms.JoinRoom(r.Context(), roomID, memberID); err != nil {
		writeServiceError(w, err, "failed to join room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave убирает текущего участника из групповой комнаты.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomID := chi.URLParam(r, "roomId")
	if err := h.rooms.LeaveRoom(r.Context(), roomID, memberID); err != nil {
		writeServiceError(w, err, "failed to leave room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyRooms возвращает комнаты текущего участника с числом непрочитанных.
func (h *RoomHandler) MyRooms(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberID(r.Context())
	roomList, err := h.rooms.ListMyRooms(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, err, "failed to list my rooms")
		return
	}
	writeJSON(w, http.StatusOK, roomList)
}
