package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/service"
)

type apiFixture struct {
	t      *testing.T
	router http.Handler
	tokens *auth.Tokens
	rec    *notify.Recorder
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIWithStore(t, repository.NewMemoryStore(time.Second))
}

func newAPIWithStore(t *testing.T, store service.Store) *apiFixture {
	t.Helper()
	tokens, err := auth.NewTokens("handler-test", "event-reg", time.Hour)
	require.NoError(t, err)
	rec := notify.NewRecorder(1024)

	h := NewEventHandler(
		service.NewEventService(store, rec),
		service.NewRegistrationService(store, rec),
	)
	return &apiFixture{
		t:      t,
		router: NewRouter(RouterConfig{Handler: h, Verifier: tokens, Idempotency: NewIdempotency(time.Minute)}),
		tokens: tokens,
		rec:    rec,
	}
}

func (f *apiFixture) token(userID string, role auth.Role) string {
	f.t.Helper()
	s, err := f.tokens.Issue(auth.Identity{UserID: userID, Role: role})
	require.NoError(f.t, err)
	return s
}

func (f *apiFixture) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createEvent(capacity int) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/events", f.token("org-1", auth.RoleOrganizer),
		model.CreateEventRequest{Name: "Launch party", Capacity: capacity})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.EventView](f.t, rec).ID
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutesRequireToken(t *testing.T) {
	f := newAPI(t)
	for _, path := range []string{"/events", "/attendees/me"} {
		rec := f.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCreateEvent(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodPost, "/events", f.token("u1", auth.RoleAttendee),
		model.CreateEventRequest{Name: "x", Capacity: 1})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/events", f.token("org-1", auth.RoleOrganizer),
		model.CreateEventRequest{Name: "", Capacity: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/events", f.token("org-1", auth.RoleOrganizer),
		map[string]any{"name": "x", "capacity": 1, "colour": "red"})
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	id := f.createEvent(2)
	rec = f.do(http.MethodGet, "/events/"+id, f.token("u1", auth.RoleAttendee), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[model.EventView](t, rec)
	require.Equal(t, 2, v.AvailableSpots)
	require.Equal(t, "org-1", v.OrganizerID)

	rec = f.do(http.MethodGet, "/events", f.token("u1", auth.RoleAttendee), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]model.EventView](t, rec), 1)

	rec = f.do(http.MethodGet, "/events/missing", f.token("u1", auth.RoleAttendee), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEventsEmptyArray(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/events", f.token("u1", auth.RoleAttendee), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestListEventsQuery(t *testing.T) {
	f := newAPI(t)
	for i := 0; i < 3; i++ {
		f.createEvent(1)
	}
	tok := f.token("u1", auth.RoleAttendee)

	rec := f.do(http.MethodGet, "/events?limit=2", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]model.EventView](t, rec), 2)

	rec = f.do(http.MethodGet, "/events?skip=2&limit=2", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]model.EventView](t, rec), 1)

	rec = f.do(http.MethodGet, "/events?upcoming_only=true", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String(), "events without a start time are not upcoming")

	for _, q := range []string{"limit=abc", "skip=-1", "limit=500", "upcoming_only=maybe"} {
		rec = f.do(http.MethodGet, "/events?"+q, tok, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestUpdateEventEndpoint(t *testing.T) {
	f := newAPI(t)
	eventID := f.createEvent(1)
	orgTok := f.token("org-1", auth.RoleOrganizer)

	rec := f.do(http.MethodPost, "/events/"+eventID+"/register", f.token("alice", auth.RoleAttendee), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPut, "/events/"+eventID, orgTok, map[string]any{"name": "Relaunch", "location": "Dock 4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[model.EventView](t, rec)
	require.Equal(t, "Relaunch", v.Name)
	require.Equal(t, "Dock 4", v.Location)
	require.Equal(t, 1, v.ConfirmedCount)
	require.True(t, v.IsFull)

	rec = f.do(http.MethodPut, "/events/"+eventID, orgTok, map[string]any{"capacity": 5})
	require.Equal(t, http.StatusBadRequest, rec.Code, "capacity goes through the resize route")

	rec = f.do(http.MethodPut, "/events/"+eventID, f.token("org-2", auth.RoleOrganizer), map[string]any{"name": "Mine"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/events/missing", orgTok, map[string]any{"name": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationFlow(t *testing.T) {
	f := newAPI(t)
	eventID := f.createEvent(1)
	orgTok := f.token("org-1", auth.RoleOrganizer)
	aTok := f.token("alice", auth.RoleAttendee)
	bTok := f.token("bob", auth.RoleAttendee)

	rec := f.do(http.MethodPost, "/events/"+eventID+"/register", aTok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	alice := decode[model.RegistrationResponse](t, rec)
	require.Equal(t, model.StatusRegistered, alice.Status)
	require.True(t, strings.HasPrefix(alice.Attendee.TicketNumber, "TKT-"))

	rec = f.do(http.MethodPost, "/attendees/register", bTok, model.RegisterRequest{EventID: eventID})
	require.Equal(t, http.StatusCreated, rec.Code)
	bob := decode[model.RegistrationResponse](t, rec)
	require.Equal(t, model.StatusWaitlisted, bob.Status)
	require.Equal(t, 1, *bob.WaitlistPosition)

	rec = f.do(http.MethodPost, "/events/"+eventID+"/register", aTok, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPut, "/attendees/"+bob.Attendee.ID+"/check-in", orgTok, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "waitlisted attendees cannot check in")

	rec = f.do(http.MethodPut, "/attendees/"+alice.Attendee.ID+"/cancel", bTok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/attendees/"+alice.Attendee.ID+"/cancel", aTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StatusCancelled, decode[model.Attendee](t, rec).Status)

	rec = f.do(http.MethodGet, "/attendees/"+bob.Attendee.ID, bTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	promoted := decode[model.Attendee](t, rec)
	require.Equal(t, model.StatusRegistered, promoted.Status)
	require.Nil(t, promoted.WaitlistPosition)

	rec = f.do(http.MethodPut, "/attendees/"+bob.Attendee.ID+"/check-in", orgTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StatusCheckedIn, decode[model.Attendee](t, rec).Status)

	rec = f.do(http.MethodGet, "/events/"+eventID+"/attendees?status=checked_in", orgTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]model.Attendee](t, rec), 1)

	rec = f.do(http.MethodGet, "/events/"+eventID+"/attendees?status=bogus", orgTok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/events/"+eventID+"/attendees", aTok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/attendees/me", aTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]model.Attendee](t, rec)
	require.Len(t, mine, 1)
	require.Equal(t, model.StatusCancelled, mine[0].Status)

	var types []model.NotificationType
	for _, n := range f.rec.Drain() {
		types = append(types, n.Type)
	}
	require.Equal(t, []model.NotificationType{
		model.NotificationRegistered,
		model.NotificationWaitlisted,
		model.NotificationPromoted,
		model.NotificationCancelled,
		model.NotificationCheckedIn,
	}, types)
}

func TestResizeEndpoint(t *testing.T) {
	f := newAPI(t)
	eventID := f.createEvent(1)
	orgTok := f.token("org-1", auth.RoleOrganizer)

	f.do(http.MethodPost, "/events/"+eventID+"/register", f.token("a", auth.RoleAttendee), nil)
	f.do(http.MethodPost, "/events/"+eventID+"/register", f.token("b", auth.RoleAttendee), nil)

	rec := f.do(http.MethodPut, "/events/"+eventID+"/capacity", f.token("org-2", auth.RoleOrganizer),
		model.ResizeRequest{Capacity: 5})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/events/"+eventID+"/capacity", orgTok, model.ResizeRequest{Capacity: 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/events/"+eventID+"/capacity", orgTok, model.ResizeRequest{Capacity: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[model.EventView](t, rec)
	require.Equal(t, 2, v.ConfirmedCount)
	require.Equal(t, 1, v.AvailableSpots)
	require.Equal(t, 0, v.WaitlistLength)

	rec = f.do(http.MethodPut, "/events/"+eventID+"/capacity", orgTok, model.ResizeRequest{Capacity: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code, "below confirmed count")
}

func TestIdempotentRetryReplays(t *testing.T) {
	f := newAPI(t)
	eventID := f.createEvent(1)
	tok := f.token("alice", auth.RoleAttendee)

	first := f.do(http.MethodPost, "/events/"+eventID+"/register", tok, nil, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	again := f.do(http.MethodPost, "/events/"+eventID+"/register", tok, nil, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, again.Code, "replayed, not AlreadyRegistered")
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), again.Body.String())

	fresh := f.do(http.MethodPost, "/events/"+eventID+"/register", tok, nil, IdempotencyHeader, "k-2")
	require.Equal(t, http.StatusConflict, fresh.Code)

	// Keys are scoped per user.
	other := f.do(http.MethodPost, "/events/"+eventID+"/register", f.token("bob", auth.RoleAttendee), nil,
		IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, other.Code)
	require.Empty(t, other.Header().Get("Idempotent-Replayed"))
}

// unavailableStore fails every mutation as a lock timeout would.
type unavailableStore struct {
	*repository.MemoryStore
}

func (unavailableStore) Mutate(context.Context, string, repository.MutateFunc) error {
	return repository.ErrStorageUnavailable
}

func TestStorageUnavailableIsRetryable(t *testing.T) {
	mem := repository.NewMemoryStore(time.Second)
	seed := newAPIWithStore(t, mem)
	eventID := seed.createEvent(1)

	f := newAPIWithStore(t, unavailableStore{mem})
	tok := f.token("alice", auth.RoleAttendee)

	rec := f.do(http.MethodPost, "/events/"+eventID+"/register", tok, nil, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = f.do(http.MethodPost, "/events/"+eventID+"/register", tok, nil, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, rec.Header().Get("Idempotent-Replayed"), "5xx responses are not stored")
	require.Empty(t, f.rec.Drain())
}

func TestCORSPreflight(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodOptions, "/events", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), IdempotencyHeader)
}
