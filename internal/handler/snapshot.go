package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/service"
)

type snapshotService interface {
	SnapshotAt(ctx context.Context, asOf time.Time) ([]service.UnitSnapshot, error)
}

type SnapshotHandler struct {
	snapshots snapshotService
}

func NewSnapshotHandler(snapshots snapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// Get reconstructs every unit's balance and status as of the `date` query
// parameter (YYYY-MM-DD).
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		RespondValidationError(w, []FieldError{{Field: "date", Message: "required"}})
		return
	}
	asOf, err := time.Parse(dateLayout, raw)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "date", Message: "must be YYYY-MM-DD"}})
		return
	}

	snapshots, err := h.snapshots.SnapshotAt(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to reconstruct snapshot", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"date":  raw,
		"units": snapshots,
	})
}
