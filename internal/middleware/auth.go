package middleware

import (
	"net/http"
	"strings"
)

// publicPaths are reachable without logging in.
var publicPaths = map[string]bool{
	"/login":      true,
	"/auth/login": true,
}

// AuthMiddleware checks that the user is logged in (has cookie 'authenticated=true').
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] ||
			strings.HasPrefix(r.URL.Path, "/static/css/") ||
			strings.HasPrefix(r.URL.Path, "/static/js/") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("authenticated")
		if err != nil || cookie.Value != "true" {
			// API and AJAX callers get 401 instead of a redirect
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
