package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/service"
	"github.com/prn-tf/truly/internal/validation"
)

// AuthHandler serves account registration and session endpoints.
type AuthHandler struct {
	userService    *service.UserService
	sessionService *service.SessionService
	cookieSecure   bool
	logger         zerolog.Logger
}

// AuthHandlerConfig contains the dependencies of AuthHandler.
type AuthHandlerConfig struct {
	UserService    *service.UserService
	SessionService *service.SessionService
	CookieSecure   bool
	Logger         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		userService:    cfg.UserService,
		sessionService: cfg.SessionService,
		cookieSecure:   cfg.CookieSecure,
		logger:         cfg.Logger.With().Str("handler", "auth").Logger(),
	}
}

// SignUp handles POST /api/sign-up.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req validation.SignUpRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	output, err := h.userService.SignUp(r.Context(), service.SignUpInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "User registered successfully. Please verify your email", map[string]interface{}{
		"username": output.User.Username,
		"email":    output.User.Email,
	})
}

// VerifyCode handles POST /api/verify-code.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req validation.VerifyCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.userService.VerifyAccount(r.Context(), req.Username, req.Code); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Account verified successfully", nil)
}

// CheckUsername handles GET /api/check-username-unique?username=.
// A taken username is reported as a conflict.
func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	query := validation.UsernameQuery{Username: r.URL.Query().Get("username")}
	if err := query.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	available, err := h.userService.CheckUsername(r.Context(), query.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !available {
		writeError(w, r, h.logger, domain.ErrUsernameTaken)
		return
	}

	writeSuccess(w, http.StatusOK, "Username is available", map[string]bool{"available": true})
}

// SignIn handles POST /api/sign-in. The token is returned in the body and
// set as the session cookie.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req validation.SignInRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.sessionService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeSuccess(w, http.StatusOK, "Signed in successfully", map[string]interface{}{
		"token":      session.Token,
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
		"user":       session.Principal,
	})
}

// SignOut handles POST /api/sign-out. Signing out without a session succeeds.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token, err := auth.ExtractToken(r); err == nil {
		if err := h.sessionService.Logout(r.Context(), token); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		MaxAge:   -1,
	})

	writeSuccess(w, http.StatusOK, "Signed out successfully", nil)
}
