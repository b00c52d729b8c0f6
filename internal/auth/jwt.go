// Package auth provides JWT token issuance/validation, password hashing, and
// the authentication middleware for the cardlink API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. User registers or logs in with email/password (or via Google OAuth)
// 2. Server issues TWO tokens: a 15-minute access token and a 7-day refresh
//    token, both stored in HttpOnly cookies (the access token is also
//    returned in the JSON body for non-browser API clients)
// 3. On API calls, middleware reads the access token (cookie first, then
//    Authorization: Bearer), validates it, and puts {userID, email} in the
//    request context
// 4. When the access token expires, the client calls POST /auth/refresh; the
//    server validates the refresh cookie and issues a brand-new pair
//
// WHY TWO SECRETS?
// Access and refresh tokens are signed with different HMAC keys. If the
// access-signing key ever leaks, an attacker can forge 15-minute tokens but
// NOT week-long refresh tokens — and vice versa. The blast radius of either
// leak stays bounded by the other key.
//
// WHY STATELESS (no server-side session store)?
// All the information needed (userID, email, expiry) is inside the signed
// token, so validation is a pure CPU check — no DB lookup, and any number of
// server instances can validate tokens. The trade-off is that we cannot
// revoke a token before its expiry; at this system's scale that is accepted,
// and the short access TTL keeps the compromise window small.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "cardlink"

// Token lifetimes. These also drive the cookie MaxAge values, so the cookie
// disappears from the browser at the same moment the token stops verifying.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Sentinel errors so callers can distinguish "expired" from "tampered".
// The middleware maps both to 401 but with different messages — expiry is a
// normal client state worth a precise message, a bad signature is not.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Claims is the identity a verified token proves: the internal user ID and
// the email at issue time. This is ALL the request gate attaches to the
// context — never the full user record, so authenticating a request costs
// zero DB round-trips.
type Claims struct {
	UserID string
	Email  string
}

// tokenClaims is the wire shape of the JWT payload. We use the standard
// "sub" claim for the user ID and a custom "email" claim.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies both token kinds. It holds one HMAC secret
// per kind; the same secret must be used to sign and verify.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
}

// NewTokenService creates a TokenService with the given secrets.
// Each secret should be at least 32 bytes of random data in production
// (config enforces this); they must differ so neither key can stand in for
// the other.
func NewTokenService(accessSecret, refreshSecret string) (*TokenService, error) {
	if len(accessSecret) < 16 || len(refreshSecret) < 16 {
		return nil, errors.New("auth: JWT secrets must be at least 16 characters")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}, nil
}

// GenerateAccessToken creates and signs a 15-minute access token.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, fast, and fine for a
// deployment where the same service signs and verifies.
func (s *TokenService) GenerateAccessToken(c Claims) (string, error) {
	return s.generate(c, s.accessSecret, AccessTokenTTL)
}

// GenerateRefreshToken creates and signs a 7-day refresh token with the
// refresh secret. Same claim shape as the access token; only the key and the
// lifetime differ.
func (s *TokenService) GenerateRefreshToken(c Claims) (string, error) {
	return s.generate(c, s.refreshSecret, RefreshTokenTTL)
}

func (s *TokenService) generate(c Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()

	tc := tokenClaims{
		Email: c.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// VerifyAccessToken parses and verifies an access token string.
// Returns the claims if valid; ErrTokenExpired or ErrTokenInvalid otherwise.
// It never panics and never returns a "half-valid" claim set.
func (s *TokenService) VerifyAccessToken(tokenStr string) (Claims, error) {
	return s.verify(tokenStr, s.accessSecret)
}

// VerifyRefreshToken is VerifyAccessToken with the refresh secret. A valid
// access token fed to this method fails — the secrets differ on purpose.
func (s *TokenService) VerifyRefreshToken(tokenStr string) (Claims, error) {
	return s.verify(tokenStr, s.refreshSecret)
}

// verify performs the actual parse + signature + expiry checks.
//
// VALIDATION (performed by the jwt library):
//   - Signature is valid (token wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "cardlink" (rejects tokens minted by other apps)
//   - Algorithm is HS256
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, an attacker could present a token with
// alg=none and some libraries would accept it. jwt.WithValidMethods prevents
// this class of bug outright.
func (s *TokenService) verify(tokenStr string, secret []byte) (Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}

	return Claims{UserID: tc.Subject, Email: tc.Email}, nil
}
