// Package handler provides the HTTP API for the Castellan server.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/service"
)

// AccountHandler serves account lifecycle and authentication endpoints.
type AccountHandler struct {
	identity *service.IdentityService
	tokens   *service.TokenService
	groups   *service.GroupService
	logger   zerolog.Logger
}

func NewAccountHandler(identity *service.IdentityService, tokens *service.TokenService, groups *service.GroupService, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		identity: identity,
		tokens:   tokens,
		groups:   groups,
		logger:   logger.With().Str("handler", "account").Logger(),
	}
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.handleCreate)
	r.Get("/accounts", h.handleList)
	r.Get("/accounts/{idx}", h.handleGet)
	r.Delete("/accounts/{idx}", h.handleDelete)
	r.Put("/accounts/{idx}/shell", h.handleChangeShell)
	r.Put("/accounts/{idx}/activation", h.handleSetActivated)
	r.Get("/accounts/{idx}/groups", h.handleReachableGroups)
	r.Get("/users/{username}", h.handleGetByUsername)

	r.Post("/auth/login", h.handleLogin)

	r.Post("/password-reset", h.handleRequestPasswordReset)
	r.Get("/password-reset/{token}", h.handleCheckPasswordReset)
	r.Post("/password-reset/{token}", h.handleCompletePasswordReset)
}

func idxParam(r *http.Request) (int64, bool) {
	idx, err := strconv.ParseInt(chi.URLParam(r, "idx"), 10, 64)
	return idx, err == nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

type createAccountRequest struct {
	Username          string `json:"username"`
	Name              string `json:"name"`
	Shell             string `json:"shell"`
	Password          string `json:"password"`
	PreferredLanguage string `json:"preferred_language"`
}

func (h *AccountHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "username, name and password are required")
		return
	}

	account, err := h.identity.Create(r.Context(), service.CreateAccountInput{
		Username:          req.Username,
		Name:              req.Name,
		Shell:             req.Shell,
		Password:          req.Password,
		PreferredLanguage: domain.Language(req.PreferredLanguage),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) handleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.identity.GetAll(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	account, err := h.identity.GetByIdx(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) handleGetByUsername(w http.ResponseWriter, r *http.Request) {
	account, err := h.identity.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	if err := h.identity.Delete(r.Context(), idx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleChangeShell(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req struct {
		Shell string `json:"shell"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Shell == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "shell is required")
		return
	}
	if err := h.identity.ChangeShell(r.Context(), idx, req.Shell); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleSetActivated(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	var req struct {
		Activated bool `json:"activated"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.identity.SetActivated(r.Context(), idx, req.Activated); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleReachableGroups(w http.ResponseWriter, r *http.Request) {
	idx, ok := idxParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_idx", "idx must be an integer")
		return
	}
	groups, err := h.groups.UserReachableGroups(r.Context(), idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"groups": groups})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AccountHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	idx, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"idx": idx})
}

type passwordResetRequest struct {
	Username string `json:"username"`
}

func (h *AccountHandler) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.identity.GetByUsername(r.Context(), req.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := h.tokens.GeneratePasswordChangeToken(r.Context(), account.Idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	count, err := h.tokens.GetResendCount(r.Context(), account.Idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The token is returned to the delivery channel, never logged.
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":        token,
		"resend_count": count,
	})
}

func (h *AccountHandler) handleCheckPasswordReset(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.EnsureTokenNotExpired(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type completePasswordResetRequest struct {
	Password string `json:"password"`
}

func (h *AccountHandler) handleCompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var req completePasswordResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "password is required")
		return
	}

	userIdx, err := h.tokens.GetUserIdxByPasswordToken(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.identity.ChangePassword(r.Context(), userIdx, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	// Single use: the token dies with the change it authorized.
	if err := h.tokens.RemoveToken(r.Context(), token); err != nil {
		h.logger.Warn().Err(err).Msg("consuming password token failed")
	}
	w.WriteHeader(http.StatusNoContent)
}
