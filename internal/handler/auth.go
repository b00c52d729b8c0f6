package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/auth"
	"github.com/sakif/cardlink/internal/service"
)

// AuthHandler exposes the authentication endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - Register / Login / Refresh / Logout / Me — the cookie-session lifecycle
//   - GoogleLogin / GoogleCallback — the OAuth redirect dance
//
// The handler owns everything HTTP: JSON decoding, cookies, redirects.
// Business rules live in the AuthService; the handler never touches bcrypt
// or the database.
type AuthHandler struct {
	service *service.AuthService
	google  *auth.GoogleProvider
	cookies *auth.CookieWriter
	// frontendURL is where OAuth callbacks land the browser afterwards.
	frontendURL string
	logger      *slog.Logger
}

func NewAuthHandler(
	svc *service.AuthService,
	google *auth.GoogleProvider,
	cookies *auth.CookieWriter,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		service:     svc,
		google:      google,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the success body for register, login, and refresh. The
// access token rides in the body as well as the cookie so non-browser
// clients can use the Authorization header instead.
type authResponse struct {
	Message     string `json:"message"`
	User        any    `json:"user,omitempty"`
	AccessToken string `json:"accessToken"`
}

// HandleRegister creates an account and starts its session.
//
// HTTP: POST /api/v1/auth/register
// Response: 201 with the user and access token, plus both token cookies.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetTokenCookies(w, result.AccessToken, result.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{
		Message:     "User registered successfully",
		User:        result.User,
		AccessToken: result.AccessToken,
	})
}

// HandleLogin authenticates a password account.
//
// HTTP: POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetTokenCookies(w, result.AccessToken, result.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		Message:     "Login successful",
		User:        result.User,
		AccessToken: result.AccessToken,
	})
}

// HandleRefresh rotates the token pair using the refresh-token cookie.
//
// HTTP: POST /api/v1/auth/refresh
//
// On ANY failure both cookies are cleared: a client with a dead refresh
// token should fall back to the login page, not retry a broken session.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		h.cookies.ClearTokenCookies(w)
		writeError(w, apperror.Unauthorized("Refresh token not found"))
		return
	}

	result, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.cookies.ClearTokenCookies(w)
		writeError(w, err)
		return
	}

	h.cookies.SetTokenCookies(w, result.AccessToken, result.RefreshToken)
	// No user in the body: the client already knows who it is, refresh only
	// renews the tokens.
	writeJSON(w, http.StatusOK, authResponse{
		Message:     "Token refreshed successfully",
		AccessToken: result.AccessToken,
	})
}

// HandleLogout ends the session by clearing both token cookies.
//
// HTTP: POST /api/v1/auth/logout
//
// Always 200, even with no cookies present: logout is idempotent, and
// "you were already logged out" is not an error worth surfacing. The tokens
// themselves stay valid until expiry — stateless JWTs cannot be revoked,
// only dropped by the client.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// HandleMe returns the authenticated user's record.
//
// HTTP: GET /api/v1/auth/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Access token not found"))
		return
	}

	user, err := h.service.GetUser(r.Context(), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /api/v1/auth/google
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into the redirect URL and a short-lived
// HttpOnly cookie; the callback requires them to match. That proves the
// callback completes a flow THIS server started.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // long enough to approve, short enough to limit replay
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth flow.
//
// HTTP: GET /api/v1/auth/google/callback?code=xxx&state=yyy
//
// Success redirects the browser to the frontend dashboard with the session
// cookies set; every failure redirects to the frontend with an error query
// parameter — the browser is mid-navigation, so JSON errors would be
// rendered as raw text.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch")
		h.redirectWithError(w, r)
		return
	}

	// Single-use: clear the state cookie regardless of outcome.
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("google callback: user denied authorization",
			slog.String("error", errParam),
		)
		h.redirectWithError(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r)
		return
	}

	gUser, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google callback: code exchange failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r)
		return
	}

	result, err := h.service.LoginOrRegisterGoogle(r.Context(), gUser)
	if err != nil {
		h.logger.Error("google callback: login failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r)
		return
	}

	h.cookies.SetTokenCookies(w, result.AccessToken, result.RefreshToken)
	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.frontendURL+"?error=authentication_failed", http.StatusSeeOther)
}
