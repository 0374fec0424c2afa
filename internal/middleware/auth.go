package middleware

import (
	"net/http"
	"strings"
)

// AuthMiddleware requires the 'authenticated=true' cookie on every request
// except the login page, its assets and the login endpoint. An empty
// password disables authentication.
func AuthMiddleware(password string, next http.Handler) http.Handler {
	if password == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" ||
			r.URL.Path == "/auth/login" ||
			strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("authenticated")
		if err != nil || cookie.Value != "true" {
			// API and AJAX callers get 401, browsers are redirected.
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
