package server

import (
	"net/http"
	"strings"

	"bookvault/internal/util"
)

// userHandlerFunc receives the authenticated identity alongside the request.
type userHandlerFunc func(http.ResponseWriter, *http.Request, string)

// withUser verifies the bearer token and passes the subject identity through.
// The identity is opaque to the rest of the pipeline; ownership checks
// compare it against a record's author field.
func (s *Server) withUser(next userHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		identity, err := s.tokens.VerifySubject(token)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		next(w, r, identity)
	})
}

// withLimit applies the rate limiter keyed by route and client IP. A nil
// limiter disables limiting.
func (s *Server) withLimit(route string, next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(route + ":" + util.ClientIP(r)) {
			s.writeError(w, r, http.StatusTooManyRequests, "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
