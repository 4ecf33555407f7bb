package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// SetCoverRequest is the body of PUT /api/cover. ID is the cover name.
type SetCoverRequest struct {
	ID       string `json:"id"`
	Position *int   `json:"position"`
}

// CoverPositionResponse is the body of GET /api/cover/{name}.
type CoverPositionResponse struct {
	Position cover.Position `json:"position"`
}

// handleSetCover drives a cover and answers once the hub acknowledged.
func (s *Server) handleSetCover(w http.ResponseWriter, r *http.Request) {
	var req SetCoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "id is required")
		return
	}
	if req.Position == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "position is required")
		return
	}
	if *req.Position < int(cover.PositionClosed) || *req.Position > int(cover.PositionOpen) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "position must be between 0 and 100")
		return
	}

	if err := s.covers.SetPosition(r.Context(), cover.Name(req.ID), cover.Position(*req.Position)); err != nil {
		s.logger.Warn("set cover position failed", "cover", req.ID, "position", *req.Position, "error", err)
		writeCoverError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	name := cover.Name(chi.URLParam(r, "name"))

	pos, err := s.covers.CoverPosition(r.Context(), name)
	if err != nil {
		writeCoverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CoverPositionResponse{Position: pos})
}

func (s *Server) handleListCovers(w http.ResponseWriter, r *http.Request) {
	positions, err := s.covers.AllPositions(r.Context())
	if err != nil {
		writeCoverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}
