package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/service"
)

// GroupHandler serves group, membership and permission endpoints.
type GroupHandler struct {
	groups *service.GroupService
	logger zerolog.Logger
}

func NewGroupHandler(groups *service.GroupService, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		logger: logger.With().Str("handler", "group").Logger(),
	}
}

// RegisterRoutes registers group routes.
func (h *GroupHandler) RegisterRoutes(r chi.Router) {
	r.Post("/groups", h.handleCreate)
	r.Get("/groups/{idx}", h.handleGet)
	r.Delete("/groups/{idx}", h.handleDelete)
	r.Get("/groups/{idx}/reachable", h.handleReachable)
	r.Post("/groups/{idx}/members", h.handleAddMember)
	r.Delete("/groups/{idx}/members/{userIdx}", h.handleRemoveMember)
	r.Post("/groups/{idx}/relations", h.handleAddRelation)
	r.Post("/groups/{idx}/permissions", h.handleGrantPermission)
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *GroupHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "name is required")
		return
	}

	group := &domain.Group{Name: req.Name, Description: req.Description}
	if err := h.groups.Create(r.Context(), group); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	group, err := h.groups.GetByIdx(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	if err := h.groups.Delete(r.Context(), idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) handleReachable(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	reachable, err := h.groups.ReachableGroups(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"groups": reachable})
}

func (h *GroupHandler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req struct {
		UserIdx int64 `json:"user_idx"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.groups.AddMembership(r.Context(), req.UserIdx, idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	userIdx, err := parseInt64(chi.URLParam(r, "userIdx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_idx", "userIdx must be an integer")
		return
	}
	if err := h.groups.RemoveMembership(r.Context(), userIdx, idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) handleAddRelation(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req struct {
		ParentIdx int64 `json:"parent_idx"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.groups.AddRelation(r.Context(), idx, req.ParentIdx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req struct {
		PermissionIdx int64 `json:"permission_idx"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.groups.GrantPermission(r.Context(), idx, req.PermissionIdx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
