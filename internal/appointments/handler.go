package appointments

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/pkg/logging"
)

// Handler exposes availability reads and the appointment lifecycle over HTTP.
// The acting party arrives in the X-Actor-ID and X-Actor-Role headers; in a
// deployment with authentication the gateway fills them from the session.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new appointments handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		panic("appointments: logger required")
	}
	return &Handler{service: service, logger: logger}
}

// SlotsResponse lists free slot starts for one doctor and day.
type SlotsResponse struct {
	DoctorID string      `json:"doctor_id"`
	Date     string      `json:"date,omitempty"`
	Duration int         `json:"duration_minutes"`
	Slots    []time.Time `json:"slots"`
	Count    int         `json:"count"`
}

// ListSlots handles GET /api/availability/{doctorID}?date=YYYY-MM-DD&duration=30.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}

	rawDate := r.URL.Query().Get("date")
	if rawDate == "" {
		http.Error(w, "date query parameter is required", http.StatusBadRequest)
		return
	}
	// The date names a civil day in the practice timezone. Parsing it as UTC
	// midnight would land on the previous local day anywhere west of UTC.
	day, err := time.ParseInLocation("2006-01-02", rawDate, h.service.policy.location())
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	duration := 0
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return
		}
	}

	slots, err := h.service.ListAvailableSlots(r.Context(), doctorID, day, duration)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}
	if duration == 0 {
		duration = h.service.policy.DefaultSlotMinutes
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		DoctorID: doctorID.String(),
		Date:     rawDate,
		Duration: duration,
		Slots:    slots,
		Count:    len(slots),
	})
}

// NextSlots handles GET /api/availability/{doctorID}/next?count=10.
func (h *Handler) NextSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}

	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
	}

	slots, err := h.service.NextAvailableSlots(r.Context(), doctorID, count)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		DoctorID: doctorID.String(),
		Duration: h.service.policy.DefaultSlotMinutes,
		Slots:    slots,
		Count:    len(slots),
	})
}

// Book handles POST /api/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.service.RequestBooking(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Get handles GET /api/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	a, err := h.service.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListResponse wraps an appointment listing.
type ListResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

// List handles GET /api/appointments?doctor_id=...|patient_id=...&status=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := Filter{Limit: 100}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	var (
		appts []*Appointment
		err   error
	)
	switch {
	case q.Get("doctor_id") != "":
		doctorID, perr := uuid.Parse(q.Get("doctor_id"))
		if perr != nil {
			http.Error(w, "invalid doctor_id", http.StatusBadRequest)
			return
		}
		appts, err = h.service.ListByDoctor(r.Context(), doctorID, filter)
	case q.Get("patient_id") != "":
		patientID, perr := uuid.Parse(q.Get("patient_id"))
		if perr != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		appts, err = h.service.ListByPatient(r.Context(), patientID, filter)
	default:
		http.Error(w, "doctor_id or patient_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Appointments: appts, Count: len(appts)})
}

// Confirm handles POST /api/appointments/{id}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}
	a, err := h.service.ConfirmAppointment(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CancelRequest is the JSON body for a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.service.CancelAppointment(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Complete handles POST /api/appointments/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}

	var outcome Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.service.CompleteAppointment(r.Context(), id, actor, outcome)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RescheduleRequest is the JSON body for moving an appointment.
type RescheduleRequest struct {
	StartAt time.Time `json:"startAt"`
}

// Reschedule handles PATCH /api/appointments/{id}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StartAt.IsZero() {
		http.Error(w, "startAt is required", http.StatusBadRequest)
		return
	}

	a, err := h.service.RescheduleAppointment(r.Context(), id, req.StartAt, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) idAndActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, Actor, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return uuid.Nil, Actor{}, false
	}

	actorID, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		http.Error(w, "missing or invalid X-Actor-ID header", http.StatusBadRequest)
		return uuid.Nil, Actor{}, false
	}
	role := Role(r.Header.Get("X-Actor-Role"))
	if !role.Valid() {
		http.Error(w, "missing or invalid X-Actor-Role header", http.StatusBadRequest)
		return uuid.Nil, Actor{}, false
	}
	return id, Actor{ID: actorID, Role: role}, true
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error *Rejection `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if rej, ok := AsRejection(err); ok {
		writeJSON(w, statusForKind(rej.Kind), errorBody{Error: rej})
		return
	}
	h.logger.Error("appointments request failed", "error", err)
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindSlotTaken:
		return http.StatusConflict
	case KindValidation, KindLeadTime, KindOutOfAvailability:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
