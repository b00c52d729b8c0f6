package auth

import (
	"net/http"
	"time"
)

// CookieWriter sets and clears the token cookie pair. It exists so the
// "secure in production" switch is decided once at wiring time instead of at
// every call site.
//
// COOKIE CONTRACT (both cookies):
//   - HttpOnly: JavaScript cannot read them — an XSS payload can't steal tokens
//   - SameSite=Strict: the browser never sends them on cross-site requests,
//     which kills CSRF for the cookie-based flow
//   - Secure in production: HTTPS only; left off in development so localhost works
//   - Path=/: sent on every route, including /api/v1/auth/refresh
//
// MaxAge mirrors the token TTLs, so the browser drops each cookie at the same
// moment the token inside it stops verifying.
type CookieWriter struct {
	secure bool
}

func NewCookieWriter(secure bool) *CookieWriter {
	return &CookieWriter{secure: secure}
}

// SetTokenCookies writes both token cookies on the response. Called on
// register, login, OAuth callback, and refresh (refresh overwrites the old
// pair — that is what "rotation" means client-side).
func (c *CookieWriter) SetTokenCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(AccessCookieName, accessToken, int(AccessTokenTTL/time.Second)))
	http.SetCookie(w, c.cookie(RefreshCookieName, refreshToken, int(RefreshTokenTTL/time.Second)))
}

// ClearTokenCookies deletes both cookies (MaxAge -1 tells the browser to
// drop them immediately). Called on logout and on any failed refresh.
func (c *CookieWriter) ClearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookieName, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookieName, "", -1))
}

func (c *CookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
