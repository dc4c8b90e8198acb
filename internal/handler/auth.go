// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the authentication API:
//
//   - POST /api/register -> Register
//   - POST /api/login    -> Login
//   - POST /api/logout   -> Logout
//   - GET  /api/me       -> Me
//
// Sessions ride in an HttpOnly cookie; the raw token never appears in a
// response body.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/ranklens-io/ranklens/internal/auth"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/service"
	"github.com/ranklens-io/ranklens/internal/session"
)

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	userService service.UserService
	roleService service.RoleService
	logger      *slog.Logger
	isSecure    bool // Secure cookie flag, true outside development
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService service.UserService, roleService service.RoleService, logger *slog.Logger, isSecure bool) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		roleService: roleService,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// =============================================================================
// Request/Response Types
// =============================================================================

// RegisterRequest is the body for POST /api/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest is the body for POST /api/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the wire form of a user.
type UserResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	Role               string `json:"role"`
	PlanType           string `json:"planType"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		Role:               string(u.Role),
		PlanType:           string(u.Role.PlanType()),
		SubscriptionStatus: string(u.SubscriptionStatus),
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// Middleware matches the standard http.Handler wrapping signature. It lets
// the caller attach rate limiting to the register and login routes without
// this package importing the middleware package.
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers authentication routes on the provided mux.
// limitRegister and limitLogin wrap the credential-accepting routes; pass
// nil to register them unwrapped.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limitRegister, limitLogin Middleware) {
	register := http.Handler(http.HandlerFunc(h.Register))
	if limitRegister != nil {
		register = limitRegister(register)
	}
	login := http.Handler(http.HandlerFunc(h.Login))
	if limitLogin != nil {
		login = limitLogin(login)
	}

	mux.Handle("POST /api/register", register)
	mux.Handle("POST /api/login", login)
	mux.HandleFunc("POST /api/logout", h.Logout)
	mux.HandleFunc("GET /api/me", h.Me)
}

// =============================================================================
// Handlers
// =============================================================================

// Register creates a new account and signs the user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// New accounts start on the free plan; resolution creates the
	// assignment row if registration didn't race one into place.
	user.Role = h.roleService.Resolve(r.Context(), user.ID)

	// Sign in immediately so the client doesn't need a second call
	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Account exists; client can log in explicitly
		h.logger.Warn("post-registration login failed", "user_id", user.ID, "error", err)
		writeJSON(w, http.StatusCreated, userResponse(user))
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, userResponse(user))
}

// Login authenticates a user and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result.User.Role = h.roleService.Resolve(r.Context(), result.User.ID)

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse(result.User))
}

// Logout invalidates the current session and clears the cookie.
// Idempotent: succeeds even without a valid session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, userResponse(user))
}

// =============================================================================
// Cookie Helpers
// =============================================================================

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
