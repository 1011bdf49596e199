package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/directory"
	"github.com/citasalud/citasalud-api/pkg/logging"
)

// Handler handles HTTP requests for availability rules and exceptions.
// onChange fires after any calendar mutation so callers can invalidate
// cached slots for the affected doctor.
type Handler struct {
	repo     Repository
	doctors  directory.Lookup
	onChange func(r *http.Request, doctorID uuid.UUID)
	logger   *logging.Logger
}

// NewHandler creates a new schedule handler. onChange may be nil.
func NewHandler(repo Repository, doctors directory.Lookup, onChange func(r *http.Request, doctorID uuid.UUID), logger *logging.Logger) *Handler {
	if repo == nil {
		panic("schedule: repository required")
	}
	if doctors == nil {
		panic("schedule: directory lookup required")
	}
	if logger == nil {
		panic("schedule: logger required")
	}
	return &Handler{
		repo:     repo,
		doctors:  doctors,
		onChange: onChange,
		logger:   logger,
	}
}

// RuleRequest is the JSON body for creating or updating a rule.
type RuleRequest struct {
	DoctorID  string `json:"doctor_id"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Active    *bool  `json:"active,omitempty"`
}

// RuleResponse is the JSON shape of an availability rule.
type RuleResponse struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Weekday   string    `json:"weekday"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ExceptionRequest is the JSON body for blocking a day.
type ExceptionRequest struct {
	DoctorID string `json:"doctor_id"`
	Day      string `json:"day"`
	Reason   string `json:"reason,omitempty"`
}

// ExceptionResponse is the JSON shape of a blocked day.
type ExceptionResponse struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Day       string    `json:"day"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func ruleResponse(rule Rule) RuleResponse {
	return RuleResponse{
		ID:        rule.ID.String(),
		DoctorID:  rule.DoctorID.String(),
		Weekday:   WeekdayName(rule.Weekday),
		StartTime: ClockString(rule.StartMinutes),
		EndTime:   ClockString(rule.EndMinutes),
		Active:    rule.Active,
		CreatedAt: rule.CreatedAt,
	}
}

func exceptionResponse(e Exception) ExceptionResponse {
	return ExceptionResponse{
		ID:        e.ID.String(),
		DoctorID:  e.DoctorID.String(),
		Day:       e.Day.Format("2006-01-02"),
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt,
	}
}

func (h *Handler) ruleFromRequest(req RuleRequest) (*Rule, string) {
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, "invalid doctor_id"
	}
	weekday, err := ParseWeekday(req.Weekday)
	if err != nil {
		return nil, err.Error()
	}
	start, err := ParseClock(req.StartTime)
	if err != nil {
		return nil, "invalid start_time: " + err.Error()
	}
	end, err := ParseClock(req.EndTime)
	if err != nil {
		return nil, "invalid end_time: " + err.Error()
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &Rule{
		DoctorID:     doctorID,
		Weekday:      weekday,
		StartMinutes: start,
		EndMinutes:   end,
		Active:       active,
	}, ""
}

// CreateRule handles POST /api/schedule/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rule, msg := h.ruleFromRequest(req)
	if msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	doc, err := h.doctors.Doctor(r.Context(), rule.DoctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.Error("doctor lookup failed", "error", err, "doctor_id", rule.DoctorID)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !doc.Active {
		http.Error(w, "doctor is inactive", http.StatusUnprocessableEntity)
		return
	}

	if err := h.repo.CreateRule(r.Context(), rule); err != nil {
		h.writeRuleError(w, err)
		return
	}

	h.logger.Info("availability rule created", "rule_id", rule.ID, "doctor_id", rule.DoctorID, "weekday", WeekdayName(rule.Weekday))
	h.notify(r, rule.DoctorID)

	writeJSON(w, http.StatusCreated, ruleResponse(*rule))
}

// ListRules handles GET /api/schedule/rules/{doctorID}.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}

	rules, err := h.repo.ListRules(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("failed to list rules", "error", err, "doctor_id", doctorID)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out, "count": len(out)})
}

// UpdateRule handles PUT /api/schedule/rules/{ruleID}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rule, msg := h.ruleFromRequest(req)
	if msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	// The rule's owner comes from the stored row; the body cannot move a rule
	// to another doctor.
	stored, err := h.repo.GetRule(r.Context(), ruleID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	if rule.DoctorID != stored.DoctorID {
		http.Error(w, "doctor_id cannot be changed", http.StatusUnprocessableEntity)
		return
	}
	rule.ID = ruleID
	rule.CreatedAt = stored.CreatedAt

	if err := h.repo.UpdateRule(r.Context(), rule); err != nil {
		h.writeRuleError(w, err)
		return
	}

	h.logger.Info("availability rule updated", "rule_id", rule.ID, "doctor_id", rule.DoctorID)
	h.notify(r, rule.DoctorID)

	writeJSON(w, http.StatusOK, ruleResponse(*rule))
}

// DeleteRule handles DELETE /api/schedule/rules/{ruleID}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	// Resolve the owner before deleting so the cached slots for that doctor
	// always get invalidated.
	stored, err := h.repo.GetRule(r.Context(), ruleID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	if err := h.repo.DeleteRule(r.Context(), ruleID); err != nil {
		h.writeRuleError(w, err)
		return
	}

	h.logger.Info("availability rule deleted", "rule_id", ruleID, "doctor_id", stored.DoctorID)
	h.notify(r, stored.DoctorID)

	w.WriteHeader(http.StatusNoContent)
}

// CreateException handles POST /api/schedule/exceptions.
func (h *Handler) CreateException(w http.ResponseWriter, r *http.Request) {
	var req ExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		http.Error(w, "invalid doctor_id", http.StatusUnprocessableEntity)
		return
	}
	day, err := time.Parse("2006-01-02", req.Day)
	if err != nil {
		http.Error(w, "invalid day, expected YYYY-MM-DD", http.StatusUnprocessableEntity)
		return
	}

	if _, err := h.doctors.Doctor(r.Context(), doctorID); err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.Error("doctor lookup failed", "error", err, "doctor_id", doctorID)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	e := &Exception{
		DoctorID: doctorID,
		Day:      day,
		Reason:   req.Reason,
	}
	if err := h.repo.CreateException(r.Context(), e); err != nil {
		if errors.Is(err, ErrDuplicateException) {
			http.Error(w, "day already blocked", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create exception", "error", err, "doctor_id", doctorID)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("schedule exception created", "exception_id", e.ID, "doctor_id", doctorID, "day", req.Day)
	h.notify(r, doctorID)

	writeJSON(w, http.StatusCreated, exceptionResponse(*e))
}

// ListExceptions handles GET /api/schedule/exceptions/{doctorID}.
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}

	exceptions, err := h.repo.ListExceptions(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("failed to list exceptions", "error", err, "doctor_id", doctorID)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]ExceptionResponse, 0, len(exceptions))
	for _, e := range exceptions {
		out = append(out, exceptionResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exceptions": out, "count": len(out)})
}

// DeleteException handles DELETE /api/schedule/exceptions/{exceptionID}.
func (h *Handler) DeleteException(w http.ResponseWriter, r *http.Request) {
	exceptionID, err := uuid.Parse(chi.URLParam(r, "exceptionID"))
	if err != nil {
		http.Error(w, "invalid exception id", http.StatusBadRequest)
		return
	}

	stored, err := h.repo.GetException(r.Context(), exceptionID)
	if err != nil {
		h.writeExceptionError(w, err, exceptionID)
		return
	}
	if err := h.repo.DeleteException(r.Context(), exceptionID); err != nil {
		h.writeExceptionError(w, err, exceptionID)
		return
	}

	h.logger.Info("schedule exception deleted", "exception_id", exceptionID, "doctor_id", stored.DoctorID)
	h.notify(r, stored.DoctorID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeExceptionError(w http.ResponseWriter, err error, exceptionID uuid.UUID) {
	if errors.Is(err, ErrExceptionNotFound) {
		http.Error(w, "exception not found", http.StatusNotFound)
		return
	}
	h.logger.Error("schedule exception error", "error", err, "exception_id", exceptionID)
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
}

func (h *Handler) notify(r *http.Request, doctorID uuid.UUID) {
	if h.onChange != nil {
		h.onChange(r, doctorID)
	}
}

func (h *Handler) writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRuleOverlap):
		http.Error(w, "rule overlaps an existing window", http.StatusConflict)
	case errors.Is(err, ErrRuleNotFound):
		http.Error(w, "rule not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrMissingDoctor):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("schedule repository error", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
