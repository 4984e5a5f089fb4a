package prescriptions

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/identity"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// Handler exposes prescription eligibility to patients and operators.
type Handler struct {
	guard  *Guard
	store  appointments.Store
	logger *logging.Logger
}

type eligibilityResponse struct {
	AppointmentID uuid.UUID                  `json:"appointment_id"`
	CanIssue      bool                       `json:"can_issue"`
	PaymentStatus appointments.PaymentStatus `json:"payment_status"`
}

func NewHandler(guard *Guard, store appointments.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{guard: guard, store: store, logger: logger}
}

// Eligibility handles GET /appointments/{id}/prescription-eligibility.
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	appt, err := h.store.Get(r.Context(), id)
	if err != nil || !identity.CanAccess(r.Context(), appt.PatientID) {
		if err != nil && !errors.Is(err, appointments.ErrNotFound) {
			h.logger.Error("appointment lookup failed", "error", err, "appointment_id", id)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}

	ok, err := h.guard.CanIssue(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("prescription eligibility failed", "error", err, "appointment_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{
		AppointmentID: id,
		CanIssue:      ok,
		PaymentStatus: appt.PaymentStatus,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
