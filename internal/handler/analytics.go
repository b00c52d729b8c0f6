package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/service"
)

// AnalyticsHandler exposes view tracking (public) and the owner dashboard
// endpoints (authenticated).
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *slog.Logger
}

func NewAnalyticsHandler(svc *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc, logger: logger}
}

type trackRequest struct {
	ProfileID string `json:"profileId"`
	Source    string `json:"source"`
	Referrer  string `json:"referrer"`
}

// HandleTrack records one visit to a published profile. Anonymous by
// design — the visitor scanning a QR code has no session.
//
// HTTP: POST /api/v1/analytics/track
//
// IP and user agent come from the request itself, not the body: the client
// shouldn't get to spoof them, and the RealIP middleware has already
// resolved the proxy chain into RemoteAddr.
func (h *AnalyticsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}
	if req.ProfileID == "" {
		writeError(w, apperror.ValidationFailed("profileId", "Profile ID is required"))
		return
	}

	referrer := req.Referrer
	if referrer == "" {
		referrer = r.Referer()
	}

	err := h.service.TrackView(r.Context(), service.TrackInput{
		ProfileID: req.ProfileID,
		Source:    req.Source,
		IPAddress: clientAddr(r),
		UserAgent: r.UserAgent(),
		Referrer:  referrer,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "View tracked successfully",
	})
}

// HandleGetSummary returns the aggregated dashboard for an owned profile.
//
// HTTP: GET /api/v1/analytics/{profileId}
func (h *AnalyticsHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetSummary(r.Context(), chi.URLParam(r, "profileId"), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleExportCSV streams the raw view history of an owned profile as a
// CSV attachment.
//
// HTTP: GET /api/v1/analytics/{profileId}/export
//
// The CSV is built into a buffer before any header goes out: once the
// attachment headers are written there is no way to switch to a JSON error
// response, so errors must be caught first.
func (h *AnalyticsHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	filename, err := h.service.ExportCSV(r.Context(), &buf, chi.URLParam(r, "profileId"), who.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("streaming CSV export failed", slog.String("error", err.Error()))
	}
}

// clientAddr strips the port from RemoteAddr when present.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
