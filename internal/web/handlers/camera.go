package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/mjpeg"
	"github.com/facemark/facemark/internal/stream"
	"github.com/facemark/facemark/internal/web/middleware"
)

const webcamDevice = "/dev/video0"

// CameraHandler exposes the camera pipeline: a live MJPEG stream, still
// snapshots and source connectivity tests.
type CameraHandler struct {
	cfg        *config.Config
	settings   database.SettingsStore
	supervisor *stream.Supervisor
}

// NewCameraHandler creates a new camera handler.
func NewCameraHandler(cfg *config.Config, settings database.SettingsStore, supervisor *stream.Supervisor) *CameraHandler {
	return &CameraHandler{
		cfg:        cfg,
		settings:   settings,
		supervisor: supervisor,
	}
}

// sourceFor resolves a user's camera settings to a decoder input URL.
func sourceFor(s *database.Settings) (string, error) {
	switch s.CameraType {
	case "ip":
		if s.IPCameraURL == "" {
			return "", errors.New("IP camera URL is not configured")
		}
		return s.IPCameraURL, nil
	case "webcam", "usb", "":
		return webcamDevice, nil
	default:
		return "", errors.New("unknown camera type " + s.CameraType)
	}
}

func (h *CameraHandler) outputFor(s *database.Settings) stream.OutputSpec {
	p := h.cfg.Resolution(s.Resolution)
	return stream.OutputSpec{
		Width:   p.Width,
		Height:  p.Height,
		FPS:     p.FPS,
		Quality: p.Quality,
	}
}

// ensureRunning starts the user's decoder session if it is not already
// running and returns the session key.
func (h *CameraHandler) ensureRunning(r *http.Request, session *middleware.Session) (string, error) {
	key := session.UserID
	if h.supervisor.Running(key) {
		return key, nil
	}

	s, err := h.settings.GetSettings(r.Context(), session.UserID)
	if err != nil {
		return "", err
	}
	source, err := sourceFor(s)
	if err != nil {
		return "", err
	}
	if err := h.supervisor.Start(r.Context(), key, source, h.outputFor(s)); err != nil {
		return "", err
	}
	return key, nil
}

// Stream serves the user's camera as multipart MJPEG until the client
// disconnects.
func (h *CameraHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key, err := h.ensureRunning(r, session)
	if err != nil {
		if errors.Is(err, stream.ErrDecoderUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "video decoder is not installed")
			return
		}
		log.Printf("starting camera stream: %v", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	frames, cancel, ok := h.supervisor.Subscribe(key)
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "camera stream is not running")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", mjpeg.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	writer := mjpeg.NewWriter(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-frames:
			if !open {
				return
			}
			if err := writer.WriteFrame(frame); err != nil {
				return
			}
		}
	}
}

// Snapshot returns the most recent frame as a JPEG, scaled down when a
// size parameter is given.
func (h *CameraHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	frame, ok := h.supervisor.Latest(session.UserID)
	if !ok || len(frame) == 0 {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}

	if size := r.URL.Query().Get("size"); size != "" {
		maxEdge := 0
		switch size {
		case "thumb":
			maxEdge = 320
		case "preview":
			maxEdge = 640
		default:
			respondError(w, http.StatusBadRequest, "size must be thumb or preview")
			return
		}
		thumb, err := stream.Thumbnail(frame, maxEdge)
		if err != nil {
			log.Printf("scaling snapshot: %v", err)
			respondError(w, http.StatusInternalServerError, "failed to scale snapshot")
			return
		}
		frame = thumb
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

type cameraTestRequest struct {
	URL string `json:"url"`
}

// TestResponse is the outcome of a camera connectivity probe.
type TestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Test probes a camera source URL without touching the user's saved
// settings, so the settings page can validate before saving.
func (h *CameraHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req cameraTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.supervisor.Test(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, stream.ErrDecoderUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "video decoder is not installed")
			return
		}
		log.Printf("camera probe failed: %v", err)
		respondError(w, http.StatusInternalServerError, "probe failed")
		return
	}

	respondJSON(w, http.StatusOK, TestResponse{
		Status:  string(result.Status),
		Message: result.Message,
	})
}

// Stop shuts down the user's decoder session immediately instead of
// waiting for the viewer grace period.
func (h *CameraHandler) Stop(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.supervisor.Stop(session.UserID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
