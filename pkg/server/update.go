package server

import (
	"log/slog"
	"net/http"

	"github.com/bolletta/bolletta/pkg/log"
)

func (s *Server) handleGetTariffs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tariffs.Snapshot())
}

// handleUpdate runs a refresh synchronously. A failed refresh answers 502
// with the snapshot still in use.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := s.tariffs.Refresh(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "manual refresh failed", slog.Any("error", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		writeBody(w, struct {
			Error    string `json:"error"`
			Snapshot any    `json:"snapshot"`
		}{Error: err.Error(), Snapshot: snap})
		return
	}
	writeJSON(w, snap)
}
