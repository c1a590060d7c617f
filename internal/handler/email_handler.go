package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/service"
)

// EmailHandler serves email registration and verification endpoints.
type EmailHandler struct {
	emails *service.EmailService
	logger zerolog.Logger
}

func NewEmailHandler(emails *service.EmailService, logger zerolog.Logger) *EmailHandler {
	return &EmailHandler{
		emails: emails,
		logger: logger.With().Str("handler", "email").Logger(),
	}
}

// RegisterRoutes registers email routes.
func (h *EmailHandler) RegisterRoutes(r chi.Router) {
	r.Post("/emails", h.handleRegister)
	r.Post("/emails/verify/{token}", h.handleVerify)
}

type registerEmailRequest struct {
	Local    string `json:"local"`
	Domain   string `json:"domain"`
	OwnerIdx *int64 `json:"owner_idx"`
}

func (h *EmailHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	email, token, err := h.emails.Register(r.Context(), req.Local, req.Domain, req.OwnerIdx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"email": email,
		"token": token,
	})
}

func (h *EmailHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	email, err := h.emails.Verify(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"local":  email.AddressLocal,
		"domain": email.AddressDomain,
	})
}
