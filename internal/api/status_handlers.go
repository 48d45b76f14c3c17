package api

import (
	"net/http"
	"time"

	"github.com/ferrovax/gatehouse/internal/gate"
	"github.com/ferrovax/gatehouse/internal/middleware"
)

// GateObserver exposes the gate's observable state to the HTTP surface.
type GateObserver interface {
	Snapshot() gate.Snapshot
}

// CameraSignal reports whether the capture loop is currently getting
// frames out of the camera.
type CameraSignal interface {
	CameraAvailable() bool
}

// StatusHandlers serves the kiosk's polled status endpoints.
type StatusHandlers struct {
	gate   GateObserver
	camera CameraSignal
}

// NewStatusHandlers creates status handlers. camera may be nil when no
// capture loop is running.
func NewStatusHandlers(gate GateObserver, camera CameraSignal) *StatusHandlers {
	return &StatusHandlers{gate: gate, camera: camera}
}

// DoorStatus handles GET /api/door-status. The kiosk polls this to render
// the door indicator and the auto-close countdown.
func (h *StatusHandlers) DoorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.gate.Snapshot())
}

// recognitionResponse is the shape of GET /api/recognition-status.
type recognitionResponse struct {
	CameraAvailable  bool      `json:"cameraAvailable"`
	LastVerifiedID   string    `json:"lastVerifiedId,omitempty"`
	LastVerifiedName string    `json:"lastVerifiedName,omitempty"`
	LastActivityAt   time.Time `json:"lastActivityAt,omitzero"`
	Status           string    `json:"status"`
}

// RecognitionStatus handles GET /api/recognition-status.
func (h *StatusHandlers) RecognitionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	snap := h.gate.Snapshot()
	resp := recognitionResponse{
		CameraAvailable:  h.camera == nil || h.camera.CameraAvailable(),
		LastVerifiedID:   snap.LastVerifiedID,
		LastVerifiedName: snap.LastVerifiedName,
		LastActivityAt:   snap.LastActivityAt,
		Status:           snap.Status,
	}
	writeJSON(w, http.StatusOK, resp)
}
