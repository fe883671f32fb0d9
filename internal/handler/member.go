package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chatserver/internal/model"
	"github.com/chatserver/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MemberHandler — служебные ручки provisioning участников. Доступны только
// изнутри сети (InternalOnly): участники заводятся сервисом идентификации,
// не самим чатом.
type MemberHandler struct {
	members *repository.MemberRepository
}

func NewMemberHandler(members *repository.MemberRepository) *MemberHandler {
	return &MemberHandler{members: members}
}

type UpsertMemberRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Upsert создаёт или обновляет участника.
func (h *MemberHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Username == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "username and email required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	m := &model.Member{
		ID:        req.ID,
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.members.Upsert(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Get возвращает участника по id.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memberId")
	m, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// List возвращает участников (limit через ?limit=, по умолчанию 100).
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.members.List(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
