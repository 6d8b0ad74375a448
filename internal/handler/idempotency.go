package handler

import (
	"bytes"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
)

// IdempotencyHeader names the request header clients set to make a POST or
// PUT safe to retry.
const IdempotencyHeader = "Idempotency-Key"

const replayedHeader = "Idempotent-Replayed"

type storedResponse struct {
	status      int
	contentType string
	body        []byte
}

// inFlight marks a key whose first request has not finished yet.
type inFlight struct{}

// Idempotency replays the first completed response for a repeated
// (user, method, path, Idempotency-Key) within ttl. Responses with status
// 5xx are not stored, so a retry after 503 executes again.
type Idempotency struct {
	cache *gocache.Cache
}

// NewIdempotency creates the replay cache.
func NewIdempotency(ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Idempotency{cache: gocache.New(ttl, 2*ttl)}
}

// Middleware must run after auth.Middleware so the key can be scoped per user.
func (m *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
			next.ServeHTTP(w, r)
			return
		}
		id, _ := auth.FromContext(r.Context())
		cacheKey := id.UserID + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + key

		// Add fails when the key exists: either a stored response or a
		// request still running.
		if err := m.cache.Add(cacheKey, inFlight{}, gocache.DefaultExpiration); err != nil {
			v, found := m.cache.Get(cacheKey)
			if resp, ok := v.(storedResponse); found && ok {
				log.Debug(log.CatHTTP, "idempotent replay", "path", r.URL.Path, "user_id", id.UserID)
				w.Header().Set(replayedHeader, "true")
				if resp.contentType != "" {
					w.Header().Set("Content-Type", resp.contentType)
				}
				w.WriteHeader(resp.status)
				_, _ = w.Write(resp.body)
				return
			}
			writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			if !completed {
				m.cache.Delete(cacheKey)
			}
		}()

		next.ServeHTTP(rec, r)
		completed = true

		if rec.status >= http.StatusInternalServerError {
			m.cache.Delete(cacheKey)
			return
		}
		m.cache.SetDefault(cacheKey, storedResponse{
			status:      rec.status,
			contentType: rec.Header().Get("Content-Type"),
			body:        rec.body.Bytes(),
		})
	})
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
