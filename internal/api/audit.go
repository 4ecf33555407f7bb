package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/tydom2mqtt/internal/audit"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// handleListAuditLogs returns recorded hub mutations, most recent first.
//
// Query parameters:
//   - cover: filter by cover name
//   - source: filter by origin (mqtt or api)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Cover:  cover.Name(q.Get("cover")),
		Source: q.Get("source"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional non-negative integer parameter. On a bad
// value it writes the error reply and reports false.
func queryInt(w http.ResponseWriter, raw, param string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, param+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
