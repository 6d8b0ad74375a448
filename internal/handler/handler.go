// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/registration"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/service"
)

// EventHandler holds all HTTP handlers for the registration API.
type EventHandler struct {
	events *service.EventService
	regs   *service.RegistrationService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *service.EventService, regs *service.RegistrationService) *EventHandler {
	return &EventHandler{events: events, regs: regs}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondErr maps service and domain errors onto HTTP status codes.
// notFound is the message used for repository.ErrNotFound.
func respondErr(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, registration.ErrCapacityBelowConfirmed),
		errors.Is(err, registration.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, registration.ErrForbidden):
		writeError(w, http.StatusForbidden, "you are not allowed to perform this action")
	case errors.Is(err, registration.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "you are already registered for this event")
	case errors.Is(err, registration.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "registration is not in a state that allows this action")
	case errors.Is(err, repository.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	default:
		log.ErrorErr(log.CatHTTP, "request failed", err,
			"method", r.Method, "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// identity returns the authenticated caller, writing 401 when there is none.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return id, ok
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event owned by the calling organizer.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), id, req)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?upcoming_only=&skip=&limit=
// Returns a JSON array with one page of events.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventView{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func eventFilter(r *http.Request) (model.EventFilter, error) {
	var f model.EventFilter
	q := r.URL.Query()
	if v := q.Get("upcoming_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("upcoming_only must be a boolean")
		}
		f.UpcomingOnly = b
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"skip", &f.Skip}, {"limit", &f.Limit}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New(p.name + " must be an integer")
		}
		*p.dst = n
	}
	return f, nil
}

// UpdateEvent handles PUT /events/{id}
// Edits name, description, location or start time.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.UpdateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.Update(r.Context(), id, chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ResizeEvent handles PUT /events/{id}/capacity
func (h *EventHandler) ResizeEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.ResizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.Resize(r.Context(), id, chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// RegisterForEvent handles POST /events/{id}/register
// Registers the caller, or waitlists them when the event is full.
func (h *EventHandler) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, chi.URLParam(r, "id"))
}

// Register handles POST /attendees/register with body {"event_id": "..."}.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.register(w, r, req.EventID)
}

func (h *EventHandler) register(w http.ResponseWriter, r *http.Request, eventID string) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	attendee, err := h.regs.Register(r.Context(), id, eventID)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusCreated, model.NewRegistrationResponse(*attendee))
}

// ListEventAttendees handles GET /events/{id}/attendees?status=
func (h *EventHandler) ListEventAttendees(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	status := model.Status(r.URL.Query().Get("status"))
	attendees, err := h.regs.ListEventAttendees(r.Context(), id, chi.URLParam(r, "id"), status)
	if err != nil {
		respondErr(w, r, err, "event not found")
		return
	}

	if attendees == nil {
		attendees = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}

// MyRegistrations handles GET /attendees/me
func (h *EventHandler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	attendees, err := h.regs.ListMyRegistrations(r.Context(), id)
	if err != nil {
		respondErr(w, r, err, "registration not found")
		return
	}

	if attendees == nil {
		attendees = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}

// GetAttendee handles GET /attendees/{id}
func (h *EventHandler) GetAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	attendee, err := h.regs.GetAttendee(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err, "attendee registration not found")
		return
	}

	writeJSON(w, http.StatusOK, attendee)
}

// Cancel handles PUT /attendees/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	attendee, err := h.regs.Cancel(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err, "attendee registration not found")
		return
	}

	writeJSON(w, http.StatusOK, attendee)
}

// CheckIn handles PUT /attendees/{id}/check-in
func (h *EventHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	attendee, err := h.regs.CheckIn(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err, "attendee registration not found")
		return
	}

	writeJSON(w, http.StatusOK, attendee)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
