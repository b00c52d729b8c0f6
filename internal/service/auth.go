// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Enforce the registration rules (email shape, password policy) BEFORE
//     any expensive work like bcrypt hashing
//   - Keep login failures indistinguishable: wrong email and wrong password
//     both produce the same generic 401
//   - Issue the access/refresh token pair on every successful auth path
//
// WHAT SERVICES NEVER DO:
//   - Set cookies or read HTTP requests (handler's job)
//   - Know any SQL (repository's job)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/auth"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/repository"
)

// invalidCredentials is the one message for EVERY password-login failure mode
// except the OAuth-only case. Distinct messages would let an attacker probe
// which emails are registered.
const invalidCredentials = "Invalid email or password"

// oauthOnlyAccount is the deliberate exception to the generic message: the
// caller has proven they know a registered email, and telling them to use
// Google unblocks a real locked-out user.
const oauthOnlyAccount = "This account uses Google login. Please sign in with Google."

// AuthService handles registration, login, token refresh, and the Google
// OAuth callback.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the freshly issued token pair so the
// handler can set both cookies and respond in one step.
type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// Register creates a password account and logs it in.
//
// Validation runs strictly BEFORE hashing: bcrypt at cost 10 takes tens of
// milliseconds, and there is no reason to spend them on a request that was
// never going to pass the password policy.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	fullName := strings.TrimSpace(in.FullName)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}
	if !auth.ValidateEmail(email) {
		return nil, apperror.ValidationFailed("email", "Invalid email format")
	}
	if fullName == "" {
		return nil, apperror.ValidationFailed("fullName", "Full name is required")
	}
	if check := auth.ValidatePassword(in.Password); !check.Valid {
		return nil, apperror.ValidationFailed("password", check.Message)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: &hash,
		FullName:     fullName,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperror.Conflict("An account with this email already exists")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
	)

	return s.issueTokens(user)
}

// Login authenticates a password account.
//
// Every failure except the OAuth-only case returns the same generic 401 —
// "no such email" and "wrong password" must be indistinguishable from the
// outside.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	// A Google-only account has no password hash to compare against.
	if user.PasswordHash == nil {
		return nil, apperror.Unauthorized(oauthOnlyAccount)
	}

	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login still succeeds — the timestamp is informational.
		s.logger.Warn("failed to update last login",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
	)

	return s.issueTokens(user)
}

// Refresh exchanges a valid refresh token for a brand-new access/refresh pair.
//
// The old refresh token is NOT invalidated: tokens are stateless and there is
// no revocation store, so any still-unexpired refresh token keeps working
// until its own expiry. This trades some security for zero server-side
// session state; a revocation list would be the fix if that trade changes.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperror.Unauthorized("Refresh token has expired")
		}
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	// Re-check the account still exists — the token may outlive the user.
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid refresh token")
		}
		return nil, fmt.Errorf("service/auth: looking up user for refresh: %w", err)
	}

	return s.issueTokens(user)
}

// LoginOrRegisterGoogle handles the Google OAuth callback: upsert the
// account (create, refresh, or link — the repository decides), stamp the
// login, issue tokens.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, gUser *auth.GoogleUser) (*AuthResult, error) {
	if gUser == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}
	if !gUser.VerifiedEmail {
		return nil, apperror.Unauthorized("Google account email is not verified")
	}

	user := &model.User{
		Email:    strings.ToLower(gUser.Email),
		GoogleID: &gUser.ID,
		FullName: gUser.Name,
	}
	if err := s.users.UpsertGoogle(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting google user: %w", err)
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	s.logger.Info("user authenticated via Google",
		slog.String("userID", user.ID),
	)

	return s.issueTokens(user)
}

// GetUser loads the authenticated user for the /me endpoint.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid token")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueTokens(user *model.User) (*AuthResult, error) {
	claims := auth.Claims{UserID: user.ID, Email: user.Email}

	access, err := s.tokens.GenerateAccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating access token for user %s: %w", user.ID, err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(claims)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating refresh token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
