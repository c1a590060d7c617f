package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/directory"
)

// DirectoryHandler serves the projected POSIX directory view.
type DirectoryHandler struct {
	projector *directory.Projector
	logger    zerolog.Logger
}

func NewDirectoryHandler(projector *directory.Projector, logger zerolog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		projector: projector,
		logger:    logger.With().Str("handler", "directory").Logger(),
	}
}

// RegisterRoutes registers directory routes.
func (h *DirectoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/directory/users", h.handleList)
	r.Get("/directory/users/{username}", h.handleGet)
}

func (h *DirectoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.projector.Entries(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *DirectoryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.projector.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
