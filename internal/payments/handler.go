package payments

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

// Handler exposes payment intent creation and operator outcome reporting.
type Handler struct {
	gate   *Gate
	store  appointments.Store
	logger *logging.Logger
}

type outcomeRequest struct {
	Outcome     string `json:"outcome"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func NewHandler(gate *Gate, store appointments.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{gate: gate, store: store, logger: logger}
}

// CreateIntent handles POST /appointments/{id}/payment-intent.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
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

	handle, err := h.gate.CreateIntent(r.Context(), id)
	if err != nil {
		h.writeGateError(w, err, id)
		return
	}
	status := http.StatusCreated
	if handle.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, handle)
}

// ReportOutcome handles POST /admin/appointments/{id}/payment-outcome.
func (h *Handler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	status, err := ParseOutcomeStatus(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome must be success or failure")
		return
	}

	appt, err := h.gate.CompletePayment(r.Context(), id, Outcome{Status: status, ProviderRef: req.ProviderRef, FailureReason: req.Reason})
	if err != nil {
		h.writeGateError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) writeGateError(w http.ResponseWriter, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, appointments.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "appointment already paid")
	case errors.Is(err, appointments.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSupersededIntent):
		writeError(w, http.StatusConflict, "payment intent superseded by a newer attempt")
	case errors.Is(err, ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many payment attempts")
	default:
		h.logger.Error("payment request failed", "error", err, "appointment_id", id)
		writeError(w, http.StatusBadGateway, "payment processor error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
