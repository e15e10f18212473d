package api

import (
	"net/http"

	"github.com/nerrad567/womgr-core/internal/dashboard"
)

// handleReconcileDashboard rebuilds every managed card from the registry.
//
// Query parameters:
//   - path: reconcile only this dashboard path
func (s *Server) handleReconcileDashboard(w http.ResponseWriter, r *http.Request) {
	recs := s.registry.List()
	specs := make([]dashboard.CardSpec, 0, len(recs))
	for _, rec := range recs {
		specs = append(specs, dashboard.SpecFor(rec))
	}

	if path := r.URL.Query().Get("path"); path != "" {
		if len(path) > maxQueryParamLen {
			writeBadRequest(w, "invalid dashboard path")
			return
		}
		res, err := s.reconciler.Reconcile(r.Context(), specs, path)
		if err != nil {
			s.logger.Error("dashboard reconcile failed", "path", path, "error", err)
			writeDeviceError(w, err, "dashboard reconcile failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": []dashboard.Result{res}})
		return
	}

	results, err := s.reconciler.ReconcileAll(r.Context(), specs)
	if err != nil {
		s.logger.Error("dashboard reconcile failed", "error", err)
		writeDeviceError(w, err, "dashboard reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
