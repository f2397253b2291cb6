package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
)

type UserHandler struct {
	svc     *services.UserService
	cookies CookieConfig
}

func NewUserHandler(svc *services.UserService, cookies CookieConfig) *UserHandler {
	return &UserHandler{svc: svc, cookies: cookies}
}

// UserRouter mounts account, verification, and session routes.
func UserRouter(r chi.Router, svc *services.UserService, authn *Authenticator, cookies CookieConfig) {
	handler := NewUserHandler(svc, cookies)
	r.Route("/users", func(r chi.Router) {
		r.With(authn.OptionalAuth).Post("/register", handler.Register)
		r.Post("/resend-otp", handler.ResendOTP)
		r.Post("/verify-otp", handler.VerifyOTP)
		r.Post("/login", handler.Login)
		r.Post("/logout", handler.Logout)
		r.Post("/", handler.Action)
		r.With(authn.RequireAuth).Get("/", handler.List)
	})
}

type registerRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Phone    string     `json:"phone"`
	Address  string     `json:"address"`
	Role     types.Role `json:"role"`
}

type registerResponse struct {
	UserID int `json:"user_id"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	UserID int    `json:"user_id"`
	Code   string `json:"code"`
}

type loginRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
}

type userResponse struct {
	User any `json:"user"`
}

type usersResponse struct {
	Users []types.User `json:"users"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var actor *auth.Principal
	if principal, ok := principalFromContext(r.Context()); ok {
		actor = &principal
	}

	user, err := h.svc.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     types.Role(strings.ToUpper(strings.TrimSpace(string(req.Role)))),
	}, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{UserID: user.ID})
}

func (h *UserHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.svc.ResendOTP(r.Context(), req.Email)
	if errors.Is(err, services.ErrAlreadyVerified) {
		writeMessage(w, http.StatusOK, "Already verified")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP sent")
}

func (h *UserHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.VerifyOTP(r.Context(), req.UserID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified")
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role := types.Role(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password, role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSessionCookies(w, h.cookies, token, user.Role)
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookies(w, h.cookies)
	writeMessage(w, http.StatusOK, "Logged out")
}

// Action serves the legacy POST /users?action=logout form.
func (h *UserHandler) Action(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") != "logout" {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	h.Logout(w, r)
}

// List returns the caller's token payload with ?me=true, otherwise every
// account for admins.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if r.URL.Query().Get("me") == "true" {
		writeJSON(w, http.StatusOK, userResponse{User: principal})
		return
	}
	if principal.Role != types.RoleAdmin {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	users, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: users})
}
