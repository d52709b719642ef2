package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opencrafts-io/parley/internal/identity"
	"github.com/opencrafts-io/parley/internal/middleware"
	"github.com/opencrafts-io/parley/internal/repository"
	"github.com/opencrafts-io/parley/internal/token"
)

//go:generate mockgen -destination=../mocks/mock_identity_service.go -package=mocks github.com/opencrafts-io/parley/internal/handlers IdentityService

// IdentityService is what the auth routes need from identity.Service.
type IdentityService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.Session, error)
	Login(ctx context.Context, req identity.LoginRequest) (*identity.Session, error)
	LogoutAll(ctx context.Context, username string) error
	ForgotUsername(ctx context.Context, req identity.ForgotUsernameRequest) error
	ForgotPassword(ctx context.Context, req identity.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req identity.ResetPasswordRequest) error
	ChangeUsername(ctx context.Context, username string, req identity.ChangeUsernameRequest) (*identity.Session, error)
	UpdateEmail(ctx context.Context, username string, req identity.UpdateEmailRequest) (*identity.Session, error)
	ChangePassword(ctx context.Context, username string, req identity.ChangePasswordRequest) (*identity.Session, error)
	Deactivate(ctx context.Context, username string) error
	Authenticate(ctx context.Context, tokenString string) (*token.Claims, error)
	Account(ctx context.Context, username string) (repository.Account, error)
	Roles() []identity.Role
}

// AuthAnonymousRoutes are the identity routes served without a session.
var AuthAnonymousRoutes = middleware.Routes{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/logout",
	"/api/auth/forgot-username",
	"/api/auth/forgot-password",
	"/api/auth/reset-password",
	"/api/auth/validate-token",
	"/api/auth/roles",
}

type CookieOptions struct {
	Secure bool
	TTL    time.Duration
}

type AuthHandler struct {
	Service IdentityService
	Cookie  CookieOptions
	Logger  *slog.Logger
}

// SessionResponse is returned by every route that issues a token.
type SessionResponse struct {
	Token   string             `json:"token"`
	Account repository.Account `json:"account"`
}

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

func (ah *AuthHandler) RegisterHandlers(router *http.ServeMux) {
	router.HandleFunc("POST /api/auth/register", ah.Register)
	router.HandleFunc("POST /api/auth/login", ah.Login)
	router.HandleFunc("GET /api/auth/logout", ah.Logout)
	router.HandleFunc("POST /api/auth/logout-all", ah.LogoutAll)
	router.HandleFunc("POST /api/auth/forgot-username", ah.ForgotUsername)
	router.HandleFunc("POST /api/auth/forgot-password", ah.ForgotPassword)
	router.HandleFunc("POST /api/auth/reset-password", ah.ResetPassword)
	router.HandleFunc("GET /api/auth/authenticate-user", ah.AuthenticateUser)
	router.HandleFunc("PUT /api/auth/change-username", ah.ChangeUsername)
	router.HandleFunc("PUT /api/auth/update-email", ah.UpdateEmail)
	router.HandleFunc("PUT /api/auth/change-password", ah.ChangePassword)
	router.HandleFunc("DELETE /api/auth/delete-user", ah.DeleteUser)
	router.HandleFunc("POST /api/auth/validate-token", ah.ValidateToken)
	router.HandleFunc("GET /api/auth/roles", ah.Roles)
}

// Register creates an account and signs it in.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.RegisterRequest  true  "Account details"
// @Success      201   {object}  SessionResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /api/auth/register [post]
func (ah *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	session, err := ah.Service.Register(r.Context(), req)
	if err != nil {
		ah.fail(w, "Failed to register account", err)
		return
	}
	ah.signIn(w, http.StatusCreated, session)
}

// Login signs an account in.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.LoginRequest  true  "Credentials"
// @Success      200   {object}  SessionResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Router       /api/auth/login [post]
func (ah *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	session, err := ah.Service.Login(r.Context(), req)
	if err != nil {
		ah.fail(w, "Failed to login", err)
		return
	}
	ah.signIn(w, http.StatusOK, session)
}

// Logout clears the session cookie. The token itself stays valid until it
// expires or LogoutAll is called.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Router       /api/auth/logout [get]
func (ah *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ah.clearCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// LogoutAll revokes every token issued to the caller.
//
// @Summary      Logout from every device
// @Tags         auth
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /api/auth/logout-all [post]
func (ah *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	if err := ah.Service.LogoutAll(r.Context(), claims.Username); err != nil {
		ah.fail(w, "Failed to revoke tokens", err)
		return
	}
	ah.clearCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out from all devices"})
}

// @Summary      Email a username reminder
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.ForgotUsernameRequest  true  "Email"
// @Success      200   {object}  MessageResponse
// @Router       /api/auth/forgot-username [post]
func (ah *AuthHandler) ForgotUsername(w http.ResponseWriter, r *http.Request) {
	var req identity.ForgotUsernameRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	if err := ah.Service.ForgotUsername(r.Context(), req); err != nil {
		ah.fail(w, "Failed to send username reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "If the email is registered, a reminder is on its way"})
}

// @Summary      Email a password reset link
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.ForgotPasswordRequest  true  "Email"
// @Success      200   {object}  MessageResponse
// @Router       /api/auth/forgot-password [post]
func (ah *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req identity.ForgotPasswordRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	if err := ah.Service.ForgotPassword(r.Context(), req); err != nil {
		ah.fail(w, "Failed to send password reset", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "If the email is registered, a reset link is on its way"})
}

// @Summary      Reset a password with a reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.ResetPasswordRequest  true  "Reset token and new password"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /api/auth/reset-password [post]
func (ah *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req identity.ResetPasswordRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	if err := ah.Service.ResetPassword(r.Context(), req); err != nil {
		ah.fail(w, "Failed to reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}

// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Success      200  {object}  repository.Account
// @Failure      401  {object}  ErrorResponse
// @Router       /api/auth/authenticate-user [get]
func (ah *AuthHandler) AuthenticateUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	account, err := ah.Service.Account(r.Context(), claims.Username)
	if err != nil {
		ah.fail(w, "Failed to load account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// @Summary      Change username
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.ChangeUsernameRequest  true  "New username"
// @Success      200   {object}  SessionResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /api/auth/change-username [put]
func (ah *AuthHandler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	var req identity.ChangeUsernameRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	session, err := ah.Service.ChangeUsername(r.Context(), claims.Username, req)
	if err != nil {
		ah.fail(w, "Failed to change username", err)
		return
	}
	ah.signIn(w, http.StatusOK, session)
}

// @Summary      Change email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.UpdateEmailRequest  true  "New email"
// @Success      200   {object}  SessionResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /api/auth/update-email [put]
func (ah *AuthHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	var req identity.UpdateEmailRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	session, err := ah.Service.UpdateEmail(r.Context(), claims.Username, req)
	if err != nil {
		ah.fail(w, "Failed to update email", err)
		return
	}
	ah.signIn(w, http.StatusOK, session)
}

// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      identity.ChangePasswordRequest  true  "Current and new password"
// @Success      200   {object}  SessionResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /api/auth/change-password [put]
func (ah *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	var req identity.ChangePasswordRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	session, err := ah.Service.ChangePassword(r.Context(), claims.Username, req)
	if err != nil {
		ah.fail(w, "Failed to change password", err)
		return
	}
	ah.signIn(w, http.StatusOK, session)
}

// @Summary      Deactivate the account
// @Tags         auth
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Router       /api/auth/delete-user [delete]
func (ah *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := ah.claims(w, r)
	if !ok {
		return
	}
	if err := ah.Service.Deactivate(r.Context(), claims.Username); err != nil {
		ah.fail(w, "Failed to deactivate account", err)
		return
	}
	ah.clearCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account deleted"})
}

// ValidateToken runs the revocation check for services without access to
// the identity store.
//
// @Summary      Validate a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      ValidateTokenRequest  true  "Token"
// @Success      200   {object}  token.Claims
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      503   {object}  ErrorResponse
// @Router       /api/auth/validate-token [post]
func (ah *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest
	if !decode(w, r, ah.Logger, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	claims, err := ah.Service.Authenticate(r.Context(), req.Token)
	if errors.Is(err, token.ErrUnavailable) {
		ah.Logger.Error("Token validation unavailable", slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, genericError)
		return
	}
	if err != nil {
		ah.Logger.Warn("Token validation rejected", slog.Any("error", err))
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// @Summary      Role catalogue
// @Tags         auth
// @Produce      json
// @Success      200  {array}  identity.Role
// @Router       /api/auth/roles [get]
func (ah *AuthHandler) Roles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ah.Service.Roles())
}

func (ah *AuthHandler) claims(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.Username == "" {
		writeError(w, http.StatusUnauthorized, "Username claim is missing")
		return nil, false
	}
	return claims, true
}

func (ah *AuthHandler) signIn(w http.ResponseWriter, status int, session *identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   ah.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(ah.Cookie.TTL),
	})
	writeJSON(w, status, SessionResponse{Token: session.Token, Account: session.Account})
}

func (ah *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   ah.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func (ah *AuthHandler) fail(w http.ResponseWriter, msg string, err error) {
	status, public := identityStatus(err)
	if status >= http.StatusInternalServerError {
		ah.Logger.Error(msg, slog.Any("error", err))
	} else {
		ah.Logger.Warn(msg, slog.Any("error", err))
	}
	writeError(w, status, public)
}

func identityStatus(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrInvalidResetToken):
		return http.StatusBadRequest, "Invalid or expired reset token"
	case errors.Is(err, identity.ErrUsernameTaken):
		return http.StatusConflict, "Username is already taken"
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, "Email is already in use"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, identity.ErrAccountInactive):
		return http.StatusForbidden, "This account has been deactivated"
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, identity.ErrDeliveryFailed):
		return http.StatusServiceUnavailable, "We could not send the email please try again later"
	}
	return http.StatusInternalServerError, genericError
}
