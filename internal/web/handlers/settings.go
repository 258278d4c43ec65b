package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/web/middleware"
)

// SettingsHandler exposes per-user camera and attendance settings.
type SettingsHandler struct {
	cfg      *config.Config
	settings database.SettingsStore
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(cfg *config.Config, settings database.SettingsStore) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, settings: settings}
}

// SettingsPayload is the wire form of a settings row.
type SettingsPayload struct {
	CameraType        string  `json:"camera_type"`
	IPCameraURL       string  `json:"ip_camera_url"`
	Resolution        string  `json:"resolution"`
	WorkStartTime     string  `json:"work_start_time"`
	LateCutoffTime    string  `json:"late_cutoff_time"`
	WorkEndTime       string  `json:"work_end_time"`
	MatchingThreshold float64 `json:"matching_threshold"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
}

// Get returns the signed-in user's settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s, err := h.settings.GetSettings(r.Context(), session.UserID)
	if err != nil {
		log.Printf("loading settings for %s: %v", session.UserID, err)
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	payload := SettingsPayload{
		CameraType:        s.CameraType,
		IPCameraURL:       s.IPCameraURL,
		Resolution:        s.Resolution,
		WorkStartTime:     s.WorkStartTime,
		LateCutoffTime:    s.LateCutoffTime,
		WorkEndTime:       s.WorkEndTime,
		MatchingThreshold: s.MatchingThreshold,
	}
	if !s.UpdatedAt.IsZero() {
		payload.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, payload)
}

// validate checks a settings payload against the accepted enums and
// time formats.
func (h *SettingsHandler) validate(p *SettingsPayload) string {
	switch p.CameraType {
	case "webcam", "usb", "ip":
	default:
		return "camera_type must be webcam, usb or ip"
	}
	if p.CameraType == "ip" && p.IPCameraURL == "" {
		return "ip_camera_url is required for an IP camera"
	}
	if _, ok := h.cfg.Presets.Resolutions[p.Resolution]; !ok {
		return "unknown resolution " + p.Resolution
	}
	for _, field := range []struct{ name, value string }{
		{"work_start_time", p.WorkStartTime},
		{"late_cutoff_time", p.LateCutoffTime},
		{"work_end_time", p.WorkEndTime},
	} {
		if _, err := attendance.ParseCutoff(field.value); err != nil {
			return field.name + " must be HH:MM"
		}
	}
	if p.MatchingThreshold <= 0 || p.MatchingThreshold > 2 {
		return "matching_threshold must be in (0, 2]"
	}
	return ""
}

// Save validates and persists the signed-in user's settings.
func (h *SettingsHandler) Save(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload SettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := h.validate(&payload); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	s := &database.Settings{
		UserID:            session.UserID,
		CameraType:        payload.CameraType,
		IPCameraURL:       payload.IPCameraURL,
		Resolution:        payload.Resolution,
		WorkStartTime:     payload.WorkStartTime,
		LateCutoffTime:    payload.LateCutoffTime,
		WorkEndTime:       payload.WorkEndTime,
		MatchingThreshold: payload.MatchingThreshold,
	}
	if err := h.settings.SaveSettings(r.Context(), s); err != nil {
		log.Printf("saving settings for %s: %v", session.UserID, err)
		respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
