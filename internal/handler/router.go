package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
)

// RouterConfig carries the collaborators NewRouter wires together.
type RouterConfig struct {
	Handler     *EventHandler
	Verifier    auth.Verifier
	Idempotency *Idempotency
	Tracer      trace.Tracer
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	idem := cfg.Idempotency
	if idem == nil {
		idem = NewIdempotency(0)
	}
	h := cfg.Handler

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // structured access log
	r.Use(CORS)                    // permissive CORS for browser clients
	r.Use(Tracing(tracer))

	// Health
	r.Get("/health", HealthCheck)

	// API routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier))
		r.Use(idem.Middleware)

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/", h.ListEvents)
			r.Get("/{id}", h.GetEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Put("/{id}/capacity", h.ResizeEvent)
			r.Post("/{id}/register", h.RegisterForEvent)
			r.Get("/{id}/attendees", h.ListEventAttendees)
		})

		r.Route("/attendees", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Get("/me", h.MyRegistrations)
			r.Get("/{id}", h.GetAttendee)
			r.Put("/{id}/cancel", h.Cancel)
			r.Put("/{id}/check-in", h.CheckIn)
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
