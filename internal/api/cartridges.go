package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListCartridges(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, s.deps.Catalog.List())
}

func (s *Server) handleGetCartridge(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to load cartridge")
		return
	}
	JSON(w, http.StatusOK, c)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Store.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch messages")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
