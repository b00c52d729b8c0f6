package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "identity", id), ANY package that knows the string
// can read or shadow your value. A package-private type prevents collisions:
// only THIS package can create a key of type contextKey.
type contextKey string

const identityKey contextKey = "identity"

// AccessCookieName and RefreshCookieName are the cookie names shared by the
// middleware and the cookie helpers in cookies.go.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// RequireAuth is the request gate enforced on every protected route.
//
// TOKEN EXTRACTION ORDER:
//  1. The "accessToken" HttpOnly cookie (browser flows)
//  2. The "Authorization: Bearer <token>" header (API clients)
//
// If neither is present the request fails 401 immediately. On a token that
// fails verification, the response message distinguishes "expired" from
// "invalid signature" — both are still 401, but expiry is the signal the
// client needs to call /auth/refresh, so it deserves a precise message.
//
// On success the verified {userID, email} claims are stored in the request
// context. Deliberately NOT the full user record: that would cost a DB
// round-trip on every request, and handlers that need the record can fetch
// it themselves.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractToken(r)
			if tokenStr == "" {
				unauthorized(w, "Access token not found")
				return
			}

			claims, err := tokens.VerifyAccessToken(tokenStr)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					unauthorized(w, "Access token has expired")
				} else {
					unauthorized(w, "Invalid token signature")
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the authenticated identity set by RequireAuth.
// Returns (Claims{}, false) if the request is anonymous.
//
// Usage in handlers:
//
//	who, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // anonymous — only possible on routes without RequireAuth
//	}
func IdentityFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(identityKey).(Claims)
	return c, ok && c.UserID != ""
}

// extractToken reads the access token from the request: cookie first, then
// the Authorization header as fallback. Returns "" when neither carries one.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

// unauthorized writes the gate's 401 response. The body shape matches the
// handler package's ErrorResponse so clients see one consistent format.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	// Hand-rolled JSON to avoid importing the handler package (which imports
	// this one). The message values are compile-time constants, never user input.
	w.Write([]byte(`{"error":"Unauthorized","message":"` + message + `"}`))
}
