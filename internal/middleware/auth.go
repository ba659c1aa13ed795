package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/foodgram/internal/auth"
	"github.com/dukerupert/foodgram/internal/store"
)

const SessionCookieName = "foodgram_session"

// tokenFromRequest reads "Authorization: Token <token>" and falls back to the
// session cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && (strings.EqualFold(scheme, "Token") || strings.EqualFold(scheme, "Bearer")) {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func authenticate(sessionStore *store.SessionStore, r *http.Request) (auth.AuthContext, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		return auth.AuthContext{}, false
	}
	sess, err := sessionStore.GetByToken(token)
	if err != nil || sess == nil {
		return auth.AuthContext{}, false
	}
	return auth.AuthContext{UserID: sess.UserID, SessionID: sess.ID, Token: sess.Token}, true
}

// RequireAuth validates the request token and populates AuthContext. Requests
// without a valid token get 401.
func RequireAuth(sessionStore *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := authenticate(sessionStore, r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// OptionalAuth populates AuthContext when a valid token is present and lets
// anonymous requests through untouched.
func OptionalAuth(sessionStore *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ac, ok := authenticate(sessionStore, r); ok {
				r = r.WithContext(auth.WithAuth(r.Context(), ac))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"errors": msg})
}
