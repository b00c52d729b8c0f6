package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/auth"
	"github.com/sakif/cardlink/internal/service"
	"github.com/sakif/cardlink/internal/upload"
)

// ProfileHandler exposes the profile CRUD endpoints plus avatar upload and
// QR regeneration.
type ProfileHandler struct {
	service *service.ProfileService
	uploads *upload.Storage
	logger  *slog.Logger
}

func NewProfileHandler(
	svc *service.ProfileService,
	uploads *upload.Storage,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		service: svc,
		uploads: uploads,
		logger:  logger,
	}
}

// identity pulls the authenticated claims or fails 401. Only reachable
// behind RequireAuth, so the failure branch guards against wiring mistakes,
// not real traffic.
func identity(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	who, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Access token not found"))
	}
	return who, ok
}

// HandleCreate creates a profile for the authenticated user.
//
// HTTP: POST /api/v1/profiles
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var in service.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	profile, err := h.service.Create(r.Context(), who.UserID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Profile created successfully",
		"profile": profile,
	})
}

// HandleListMine lists the caller's profiles newest-first.
//
// HTTP: GET /api/v1/profiles/my-profiles
func (h *ProfileHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	profiles, err := h.service.ListMine(r.Context(), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// HandleGetForEdit returns the full aggregate of an owned profile.
//
// HTTP: GET /api/v1/profiles/edit/{id}
func (h *ProfileHandler) HandleGetForEdit(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

// HandleGetBySlug serves the public card page data. No auth: this is what
// a scanned QR code resolves to.
//
// HTTP: GET /api/v1/profiles/{slug}
func (h *ProfileHandler) HandleGetBySlug(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

// HandleUpdate applies a partial update to an owned profile.
//
// HTTP: PUT /api/v1/profiles/{id}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var in service.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	profile, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), who.UserID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"profile": profile,
	})
}

// HandleDelete removes an owned profile.
//
// HTTP: DELETE /api/v1/profiles/{id}
func (h *ProfileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), who.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Profile deleted successfully",
	})
}

// HandleRegenerateQR re-renders the QR image for an owned profile.
//
// HTTP: POST /api/v1/profiles/{id}/regenerate-qr
func (h *ProfileHandler) HandleRegenerateQR(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	profile, err := h.service.RegenerateQRCode(r.Context(), chi.URLParam(r, "id"), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "QR code regenerated successfully",
		"profile": profile,
	})
}

// HandleUploadAvatar accepts a multipart image and returns its public URL.
// The profile itself is not touched — the client sends the returned URL in
// a subsequent create/update call.
//
// HTTP: POST /api/v1/profiles/upload-avatar, multipart field "avatar"
func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	// +1KiB of multipart framing headroom over the file cap.
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+1024)
	if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
		writeError(w, apperror.ValidationFailed("avatar", "File exceeds the 5MB limit"))
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, apperror.ValidationFailed("avatar", "No avatar file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperror.ValidationFailed("avatar", "Could not read uploaded file"))
		return
	}

	stored, err := h.uploads.Store(data, header.Header.Get("Content-Type"))
	if err != nil {
		switch err {
		case upload.ErrTooLarge:
			writeError(w, apperror.ValidationFailed("avatar", "File exceeds the 5MB limit"))
		case upload.ErrNotAnImage, upload.ErrEmptyFile:
			writeError(w, apperror.ValidationFailed("avatar", "Only image files are allowed"))
		default:
			writeError(w, err)
		}
		return
	}

	h.logger.Info("avatar uploaded", slog.String("url", stored.URL))

	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Avatar uploaded successfully",
		"avatarUrl": stored.URL,
	})
}
