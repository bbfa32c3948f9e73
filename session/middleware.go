package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// RequireUser rejects requests without a valid signed-in session cookie and
// attaches the session to the request context for the wrapped handler. A
// cookie that fails verification is cleared so the client stops sending it.
func RequireUser(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := GetSessionFromCookie(r, secret)
		if err != nil || !u.SignedIn {
			if err != nil {
				log.Printf("Authentication failed: %v", err)
				if !errors.Is(err, http.ErrNoCookie) {
					ClearSessionCookie(w)
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(u.WithContext(r.Context())))
	})
}
