package server

import (
	"fmt"
	"net/http"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/sections"
)

type sectionInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSections(w http.ResponseWriter, _ *http.Request) {
	specs := s.cfg.Catalog.Specs()
	out := make([]sectionInfo, len(specs))
	for i, spec := range specs {
		out[i] = sectionInfo{ID: spec.ID, Title: spec.Title}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sections": out})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"languages": sections.Languages(),
		"default":   s.cfg.Defaults.Language,
	})
}

// handleGenerationLog returns the newest analytics rows. It needs a database.
func (s *Server) handleGenerationLog(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		s.errorResponse(w, http.StatusNotImplemented, "generation log requires a database")
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), db.DefaultListLimit)
	if err != nil || limit < 1 || limit > 500 {
		s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be between 1 and 500"})
		return
	}
	entries, err := s.cfg.DB.GenerationLog(r.Context(), r.URL.Query().Get("company"), limit)
	if err != nil {
		s.errorFrom(w, fmt.Errorf("failed to read generation log: %w", err))
		return
	}
	if entries == nil {
		entries = []db.GenerationLogEntry{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
