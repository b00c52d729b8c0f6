package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cardlink/internal/auth"
	"github.com/sakif/cardlink/internal/config"
)

// newTestServer wires the full router against an in-memory database and a
// temp upload directory. These tests exercise the real stack end to end:
// router → handlers → services → sqlite.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:               0,
		Environment:        "test",
		DBPath:             ":memory:",
		UploadDir:          t.TempDir(),
		JWTSecret:          "test-access-secret-0123456789",
		JWTRefreshSecret:   "test-refresh-secret-0123456789",
		FrontendURL:        "http://localhost:5173",
		LoginRateLimit:     1000,
		LoginRateWindow:    time.Minute,
		RegisterRateLimit:  1000,
		RegisterRateWindow: time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

// registerUser registers an account and returns the recorder so callers can
// pull cookies and tokens off it.
func registerUser(t *testing.T, srv *Server, email string) *httptest.ResponseRecorder {
	t.Helper()
	rec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "password1",
		"fullName": "Test User",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, "register failed: %s", rec.Body.String())
	return rec
}

// authCookies extracts the token cookies from a register/login response.
func authCookies(t *testing.T, rec *httptest.ResponseRecorder) []*http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func createProfileReq(t *testing.T, srv *Server, cookies []*http.Cookie, fullName string) map[string]any {
	t.Helper()
	rec := do(srv, withCookies(jsonRequest(t, http.MethodPost, "/api/v1/profiles", map[string]any{
		"fullName": fullName,
		"email":    "card@example.com",
		"title":    "Engineer",
	}), cookies))
	require.Equal(t, http.StatusCreated, rec.Code, "create profile failed: %s", rec.Body.String())

	var body struct {
		Profile map[string]any `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Profile
}

// =========================================================================
// INFRASTRUCTURE
// =========================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cardlink-api")
}

// =========================================================================
// AUTH FLOW
// =========================================================================

func TestRegister_SetsBothCookies(t *testing.T) {
	srv := newTestServer(t)
	rec := registerUser(t, srv, "jane@example.com")

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
		assert.True(t, c.HttpOnly, "cookie %s must be HttpOnly", c.Name)
	}
	assert.True(t, names[auth.AccessCookieName])
	assert.True(t, names[auth.RefreshCookieName])

	var body struct {
		Message     string `json:"message"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "User registered successfully", body.Message)
	assert.NotEmpty(t, body.AccessToken)
	// The password hash must never appear in a response.
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestRegister_WeakPassword(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "jane@example.com",
		"password": "12345678", // no letter
		"fullName": "Jane",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one letter")
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "jane@example.com")

	rec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "jane@example.com",
		"password": "password1",
		"fullName": "Other Jane",
	}))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestLogin_And_Me(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "jane@example.com")

	loginRec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "jane@example.com",
		"password": "password1",
	}))
	require.Equal(t, http.StatusOK, loginRec.Code)

	meRec := do(srv, withCookies(
		httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil),
		authCookies(t, loginRec),
	))
	assert.Equal(t, http.StatusOK, meRec.Code)
	assert.Contains(t, meRec.Body.String(), "jane@example.com")
}

func TestLogin_GenericFailureMessage(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "jane@example.com")

	wrongPass := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "jane@example.com", "password": "wrong1234",
	}))
	noAccount := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "password1",
	}))

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, noAccount.Code)
	assert.JSONEq(t, wrongPass.Body.String(), noAccount.Body.String(),
		"failure responses must not reveal whether the email exists")
}

func TestProtectedRoute_WithoutToken(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access token not found")
}

func TestBearerHeaderWorksWithoutCookie(t *testing.T) {
	srv := newTestServer(t)
	rec := registerUser(t, srv, "jane@example.com")

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	meRec := do(srv, req)
	assert.Equal(t, http.StatusOK, meRec.Code)
}

func TestRefresh_RotatesPair(t *testing.T) {
	srv := newTestServer(t)
	regRec := registerUser(t, srv, "jane@example.com")

	refreshRec := do(srv, withCookies(
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil),
		authCookies(t, regRec),
	))
	assert.Equal(t, http.StatusOK, refreshRec.Code)

	names := map[string]bool{}
	for _, c := range refreshRec.Result().Cookies() {
		names[c.Name] = true
	}
	assert.True(t, names[auth.AccessCookieName], "refresh must reissue the access cookie")
	assert.True(t, names[auth.RefreshCookieName], "refresh must reissue the refresh cookie")

	// The refresh body carries only message + accessToken; the user object
	// belongs to register/login responses.
	var body map[string]any
	require.NoError(t, json.Unmarshal(refreshRec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["accessToken"])
	assert.NotContains(t, body, "user")
}

func TestRefresh_WithoutCookie(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// Failure clears both cookies so clients fall back to login cleanly.
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge, "cookie %s should be expired", c.Name)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out successfully")
}

// =========================================================================
// PROFILES
// =========================================================================

func TestProfileLifecycle(t *testing.T) {
	srv := newTestServer(t)
	cookies := authCookies(t, registerUser(t, srv, "jane@example.com"))

	profile := createProfileReq(t, srv, cookies, "John Doe")
	assert.Equal(t, "john-doe", profile["slug"])
	profileID := profile["id"].(string)

	// Public page by slug, no auth.
	pubRec := do(srv, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/john-doe", nil))
	assert.Equal(t, http.StatusOK, pubRec.Code)
	assert.Contains(t, pubRec.Body.String(), "John Doe")

	// Owner's edit view, full aggregate by id.
	editRec := do(srv, withCookies(httptest.NewRequest(http.MethodGet, "/api/v1/profiles/edit/"+profileID, nil), cookies))
	assert.Equal(t, http.StatusOK, editRec.Code)
	assert.Contains(t, editRec.Body.String(), "john-doe")

	// Owner updates.
	updRec := do(srv, withCookies(jsonRequest(t, http.MethodPut, "/api/v1/profiles/"+profileID, map[string]any{
		"fullName": "John Doe",
		"title":    "Staff Engineer",
	}), cookies))
	assert.Equal(t, http.StatusOK, updRec.Code)
	assert.Contains(t, updRec.Body.String(), "Staff Engineer")

	// A collection-only update leaves the scalar fields alone.
	partialRec := do(srv, withCookies(jsonRequest(t, http.MethodPut, "/api/v1/profiles/"+profileID, map[string]any{
		"socialLinks": []map[string]string{{"platform": "github", "url": "https://github.com/johndoe"}},
	}), cookies))
	assert.Equal(t, http.StatusOK, partialRec.Code)
	assert.Contains(t, partialRec.Body.String(), "Staff Engineer", "omitted title must survive a partial update")

	// Listing shows one profile.
	listRec := do(srv, withCookies(httptest.NewRequest(http.MethodGet, "/api/v1/profiles/my-profiles", nil), cookies))
	assert.Equal(t, http.StatusOK, listRec.Code)

	// Delete, then the public page is gone.
	delRec := do(srv, withCookies(httptest.NewRequest(http.MethodDelete, "/api/v1/profiles/"+profileID, nil), cookies))
	assert.Equal(t, http.StatusOK, delRec.Code)

	goneRec := do(srv, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/john-doe", nil))
	assert.Equal(t, http.StatusNotFound, goneRec.Code)
}

func TestProfile_NonOwnerGets404(t *testing.T) {
	srv := newTestServer(t)
	ownerCookies := authCookies(t, registerUser(t, srv, "owner@example.com"))
	intruderCookies := authCookies(t, registerUser(t, srv, "intruder@example.com"))

	profile := createProfileReq(t, srv, ownerCookies, "John Doe")
	profileID := profile["id"].(string)

	rec := do(srv, withCookies(jsonRequest(t, http.MethodPut, "/api/v1/profiles/"+profileID, map[string]any{
		"fullName": "Hacked",
	}), intruderCookies))
	assert.Equal(t, http.StatusNotFound, rec.Code, "non-owner must see 404, not 403")
	assert.Contains(t, rec.Body.String(), "Profile not found or unauthorized")
}

func TestProfile_CreateRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/profiles", map[string]any{
		"fullName": "John Doe", "email": "x@example.com",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =========================================================================
// ANALYTICS
// =========================================================================

func TestAnalyticsFlow(t *testing.T) {
	srv := newTestServer(t)
	cookies := authCookies(t, registerUser(t, srv, "jane@example.com"))
	profile := createProfileReq(t, srv, cookies, "John Doe")
	profileID := profile["id"].(string)

	// Anonymous tracking.
	trackRec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/analytics/track", map[string]string{
		"profileId": profileID,
		"source":    "QR_SCAN",
	}))
	require.Equal(t, http.StatusCreated, trackRec.Code, trackRec.Body.String())

	// Owner dashboard.
	sumRec := do(srv, withCookies(
		httptest.NewRequest(http.MethodGet, "/api/v1/analytics/"+profileID, nil), cookies))
	require.Equal(t, http.StatusOK, sumRec.Code)

	var summary struct {
		TotalViews   int `json:"totalViews"`
		TotalQRScans int `json:"totalQrScans"`
	}
	require.NoError(t, json.Unmarshal(sumRec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalViews)
	assert.Equal(t, 1, summary.TotalQRScans)

	// CSV export.
	csvRec := do(srv, withCookies(
		httptest.NewRequest(http.MethodGet, "/api/v1/analytics/"+profileID+"/export", nil), cookies))
	assert.Equal(t, http.StatusOK, csvRec.Code)
	assert.Equal(t, "text/csv", csvRec.Header().Get("Content-Type"))
	assert.Contains(t, csvRec.Header().Get("Content-Disposition"), "john-doe-analytics-")
	assert.Contains(t, csvRec.Body.String(), "Timestamp,Source,Referrer,Device Type")
}

func TestAnalytics_SummaryRequiresOwnership(t *testing.T) {
	srv := newTestServer(t)
	ownerCookies := authCookies(t, registerUser(t, srv, "owner@example.com"))
	intruderCookies := authCookies(t, registerUser(t, srv, "intruder@example.com"))
	profile := createProfileReq(t, srv, ownerCookies, "John Doe")

	rec := do(srv, withCookies(
		httptest.NewRequest(http.MethodGet, "/api/v1/analytics/"+profile["id"].(string), nil),
		intruderCookies))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalytics_TrackUnknownProfile(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, jsonRequest(t, http.MethodPost, "/api/v1/analytics/track", map[string]string{
		"profileId": "no-such-profile",
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// RATE LIMITING
// =========================================================================

func TestLoginRateLimit(t *testing.T) {
	cfg := &config.Config{
		Environment:        "test",
		DBPath:             ":memory:",
		UploadDir:          t.TempDir(),
		JWTSecret:          "test-access-secret-0123456789",
		JWTRefreshSecret:   "test-refresh-secret-0123456789",
		FrontendURL:        "http://localhost:5173",
		LoginRateLimit:     2,
		LoginRateWindow:    time.Hour,
		RegisterRateLimit:  1000,
		RegisterRateWindow: time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"email": "x@example.com", "password": "password1",
		})
		req.RemoteAddr = "203.0.113.1:1234"
		last = do(srv, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

// Slug collisions across users resolve with counters, end to end.
func TestSlugCounterAcrossUsers(t *testing.T) {
	srv := newTestServer(t)

	for i, email := range []string{"a@example.com", "b@example.com"} {
		cookies := authCookies(t, registerUser(t, srv, email))
		profile := createProfileReq(t, srv, cookies, "John Doe")
		want := "john-doe"
		if i == 1 {
			want = "john-doe-1"
		}
		assert.Equal(t, want, profile["slug"], fmt.Sprintf("user %d", i))
	}
}
