package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/types"
)

// Cookie names. The role cookie only drives page routing.
const (
	AuthCookieName = "auth"
	RoleCookieName = "role"
)

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// Authenticator verifies the auth token of a request. The token is read
// from the auth cookie first and then from a Bearer header.
type Authenticator struct {
	tokens *auth.Issuer
}

func NewAuthenticator(tokens *auth.Issuer) *Authenticator {
	return &Authenticator{tokens: tokens}
}

func (a *Authenticator) authenticate(r *http.Request) (auth.Principal, bool) {
	for _, token := range requestTokens(r) {
		principal, err := a.tokens.Verify(token)
		if err == nil {
			return principal, true
		}
	}
	return auth.Principal{}, false
}

// RequireAuth rejects requests without a valid token and injects the
// principal into the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := a.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// OptionalAuth injects the principal when a valid token is present and
// passes the request through either way.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, ok := a.authenticate(r); ok {
			r = r.WithContext(withPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only principals holding one of roles. It must run
// after RequireAuth.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

// RequireStaff allows librarians and admins.
var RequireStaff = RequireRole(types.RoleLibrarian, types.RoleAdmin)

func requestTokens(r *http.Request) []string {
	var tokens []string
	if cookie, err := r.Cookie(AuthCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		tokens = append(tokens, cookie.Value)
	}
	if token, err := bearerToken(r); err == nil {
		tokens = append(tokens, token)
	}
	return tokens
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func setSessionCookies(w http.ResponseWriter, cfg CookieConfig, token string, role types.Role) {
	maxAge := int(cfg.MaxAge / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RoleCookieName,
		Value:    string(role),
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{AuthCookieName, RoleCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == AuthCookieName,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
