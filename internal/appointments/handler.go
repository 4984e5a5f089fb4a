package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/internal/identity"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// Handler serves appointment reads and operator status changes.
type Handler struct {
	store     Store
	lifecycle *Lifecycle
	logger    *logging.Logger
}

type statusRequest struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type listResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

func NewHandler(store Store, lifecycle *Lifecycle, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, lifecycle: lifecycle, logger: logger}
}

// Get handles GET /appointments/{id}. Patients only see their own.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.store.Get(r.Context(), id)
	if err != nil || !identity.CanAccess(r.Context(), appt.PatientID) {
		if err != nil && !errors.Is(err, ErrNotFound) {
			h.logger.Error("appointment lookup failed", "error", err, "appointment_id", id)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListMine handles GET /appointments for the authenticated patient.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	patientID, ok := identity.PatientIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing patient identity")
		return
	}
	list, err := h.store.ListByPatient(r.Context(), patientID)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: list})
}

// ChangeStatus handles POST /admin/appointments/{id}/status.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	appt, err := h.lifecycle.Transition(r.Context(), id, req.Status, req.Reason)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, appt)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("status change failed", "error", err, "appointment_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "appointment not found")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
