package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/service"
)

// HostHandler serves host, host group and authorization endpoints.
type HostHandler struct {
	hosts  *service.HostService
	logger zerolog.Logger
}

func NewHostHandler(hosts *service.HostService, logger zerolog.Logger) *HostHandler {
	return &HostHandler{
		hosts:  hosts,
		logger: logger.With().Str("handler", "host").Logger(),
	}
}

// RegisterRoutes registers host routes.
func (h *HostHandler) RegisterRoutes(r chi.Router) {
	r.Post("/hosts", h.handleCreate)
	r.Get("/hosts", h.handleList)
	r.Get("/hosts/{idx}", h.handleGet)
	r.Put("/hosts/{idx}", h.handleUpdate)
	r.Delete("/hosts/{idx}", h.handleDelete)

	r.Post("/host-groups", h.handleCreateGroup)
	r.Get("/host-groups/{idx}", h.handleGetGroup)
	r.Delete("/host-groups/{idx}", h.handleDeleteGroup)

	r.Get("/authorize", h.handleAuthorize)
}

type hostRequest struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	HostGroupIdx *int64 `json:"host_group_idx"`
}

func (h *HostHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Host == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "name and host are required")
		return
	}

	host := &domain.Host{Name: req.Name, Host: req.Host, HostGroupIdx: req.HostGroupIdx}
	if err := h.hosts.CreateHost(r.Context(), host); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, host)
}

func (h *HostHandler) handleList(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.hosts.ListHosts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (h *HostHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	host, err := h.hosts.GetHostByIdx(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (h *HostHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req hostRequest
	if !decodeBody(w, r, &req) {
		return
	}

	host := &domain.Host{Idx: idx, Name: req.Name, Host: req.Host, HostGroupIdx: req.HostGroupIdx}
	if err := h.hosts.UpdateHost(r.Context(), host); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (h *HostHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	if err := h.hosts.DeleteHost(r.Context(), idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hostGroupRequest struct {
	Name                  string `json:"name"`
	RequiredPermissionIdx *int64 `json:"required_permission_idx"`
}

func (h *HostHandler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req hostGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "name is required")
		return
	}

	group := &domain.HostGroup{Name: req.Name, RequiredPermissionIdx: req.RequiredPermissionIdx}
	if err := h.hosts.CreateHostGroup(r.Context(), group); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *HostHandler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	group, err := h.hosts.GetHostGroupByIdx(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *HostHandler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	if err := h.hosts.DeleteHostGroup(r.Context(), idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthorize decides whether a user may access the host at the
// given network address. The decision class is reported on success.
func (h *HostHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	userParam := r.URL.Query().Get("user_idx")
	if address == "" || userParam == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "address and user_idx are required")
		return
	}
	userIdx, err := parseInt64(userParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_idx", "user_idx must be an integer")
		return
	}

	decision, err := h.hosts.AuthorizeUserByAddress(r.Context(), userIdx, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}
