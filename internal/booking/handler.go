package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/identity"
	"github.com/wolfman30/consult-booking/internal/scheduling"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// Handler exposes slot listing and appointment creation over HTTP.
type Handler struct {
	coordinator *Coordinator
	logger      *logging.Logger
}

type createRequest struct {
	DoctorID string                      `json:"doctor_id"`
	Date     string                      `json:"date"`
	TimeSlot string                      `json:"time_slot"`
	Patient  appointments.PatientDetails `json:"patient"`
}

type slotsResponse struct {
	DoctorID string                `json:"doctor_id"`
	Date     scheduling.Date       `json:"date"`
	Slots    []scheduling.TimeSlot `json:"slots"`
}

func NewHandler(coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, logger: logger}
}

// ListFreeSlots handles GET /doctors/{doctorID}/slots?date=YYYY-MM-DD.
func (h *Handler) ListFreeSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := scheduling.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.coordinator.FreeSlots(r.Context(), doctorID, date)
	if err != nil {
		h.writeBookingError(w, err, doctorID)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

// CreateAppointment handles POST /appointments for the authenticated patient.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := identity.PatientIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing patient identity")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.DoctorID) == "" {
		writeError(w, http.StatusBadRequest, "doctor_id is required")
		return
	}

	appt, err := h.coordinator.Book(r.Context(), Request{
		DoctorID:  req.DoctorID,
		PatientID: patientID,
		Date:      scheduling.Date(req.Date),
		TimeSlot:  scheduling.TimeSlot(req.TimeSlot),
		Patient:   req.Patient,
	})
	if err != nil {
		h.writeBookingError(w, err, req.DoctorID)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) writeBookingError(w http.ResponseWriter, err error, doctorID string) {
	switch {
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrPatientRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor not found")
	case errors.Is(err, appointments.ErrConflict):
		writeError(w, http.StatusConflict, "slot already booked")
	default:
		h.logger.Error("booking request failed", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusInternalServerError, "internal error")
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
