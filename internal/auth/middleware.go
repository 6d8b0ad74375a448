package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// Verifier is the subset of Tokens the middleware needs.
type Verifier interface {
	Verify(tokenString string) (Identity, error)
}

// Middleware rejects requests without a valid "Authorization: Bearer" token
// and stores the caller's Identity in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			id, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Debug(log.CatAuth, "token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="event-reg"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg})
}
