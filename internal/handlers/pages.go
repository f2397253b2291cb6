package handlers

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/types"
)

const loginPath = "/login"

var pageSections = map[string]types.Role{
	"/admin":     types.RoleAdmin,
	"/librarian": types.RoleLibrarian,
	"/patron":    types.RolePatron,
}

// DashboardPath returns the landing page of role.
func DashboardPath(role types.Role) string {
	return "/" + strings.ToLower(string(role)) + "/dashboard"
}

// PageGate redirects page requests based on the role cookie. It routes the
// UI only; API handlers verify the signed token themselves.
func PageGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := roleCookie(r)
		path := r.URL.Path

		if path == loginPath {
			if role.Valid() {
				http.Redirect(w, r, DashboardPath(role), http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		for prefix, required := range pageSections {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				if role != required {
					http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
					return
				}
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

// PageRouter mounts the gated page sections. Pages are served from
// staticDir, or a placeholder when it is empty.
func PageRouter(r chi.Router, staticDir string) {
	pages := pageHandler(staticDir)
	r.Group(func(r chi.Router) {
		r.Use(PageGate)
		r.Get(loginPath, pages.ServeHTTP)
		for prefix := range pageSections {
			r.Get(prefix, pages.ServeHTTP)
			r.Get(prefix+"/*", pages.ServeHTTP)
		}
	})
}

func pageHandler(staticDir string) http.Handler {
	if staticDir != "" {
		return http.FileServer(http.Dir(staticDir))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<!doctype html><title>Library</title><p>%s</p>\n", html.EscapeString(r.URL.Path))
	})
}

func roleCookie(r *http.Request) types.Role {
	cookie, err := r.Cookie(RoleCookieName)
	if err != nil {
		return ""
	}
	return types.Role(cookie.Value)
}
