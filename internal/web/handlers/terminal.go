package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/vision"
	"github.com/facemark/facemark/internal/web/middleware"
)

// FaceDetector is the slice of the vision client the terminal needs.
type FaceDetector interface {
	DetectBest(ctx context.Context, frame []byte) (*vision.Detection, error)
}

// TerminalHandler drives the attendance terminal: the teacher opens a
// course, the camera frames come in, and recognized students get their
// row for the day.
type TerminalHandler struct {
	students database.StudentStore
	courses  database.CourseStore
	records  database.AttendanceStore
	settings database.SettingsStore
	recorder *attendance.Recorder
	detector FaceDetector
	index    *face.Index
	now      func() time.Time
}

// NewTerminalHandler creates a new terminal handler.
func NewTerminalHandler(
	students database.StudentStore,
	courses database.CourseStore,
	records database.AttendanceStore,
	settings database.SettingsStore,
	recorder *attendance.Recorder,
	detector FaceDetector,
	index *face.Index,
) *TerminalHandler {
	return &TerminalHandler{
		students: students,
		courses:  courses,
		records:  records,
		settings: settings,
		recorder: recorder,
		detector: detector,
		index:    index,
		now:      time.Now,
	}
}

// CourseSummary is one course in the teacher-data response.
type CourseSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	ClassID       string `json:"class_id"`
	ClassName     string `json:"class_name"`
	EnrolledCount int    `json:"enrolled_count"`
}

// TeacherData returns the signed-in teacher's courses with class info
// and enrollment counts, everything the terminal page needs up front.
func (h *TerminalHandler) TeacherData(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courses, err := h.courses.ListCoursesByInstructor(r.Context(), session.UserID)
	if err != nil {
		log.Printf("listing courses for %s: %v", session.UserID, err)
		respondError(w, http.StatusInternalServerError, "failed to load courses")
		return
	}

	summaries := make([]CourseSummary, 0, len(courses))
	for _, c := range courses {
		summary := CourseSummary{
			ID:      c.ID,
			Name:    c.Name,
			Code:    c.Code,
			ClassID: c.ClassID,
		}
		if class, err := h.courses.GetClass(r.Context(), c.ClassID); err == nil {
			summary.ClassName = class.Name
		}
		if n, err := h.courses.CountEnrolledStudents(r.Context(), c.ClassID); err == nil {
			summary.EnrolledCount = n
		}
		summaries = append(summaries, summary)
	}

	respondJSON(w, http.StatusOK, map[string]any{"courses": summaries})
}

type identifyRequest struct {
	Image string `json:"image"` // base64 JPEG, optionally a data URL
}

// IdentifyResponse is the outcome of one identification attempt.
type IdentifyResponse struct {
	Recognized      bool    `json:"recognized"`
	StudentID       string  `json:"student_id,omitempty"`
	StudentName     string  `json:"student_name,omitempty"`
	RollNo          string  `json:"roll_no,omitempty"`
	Status          string  `json:"status,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	AlreadyRecorded bool    `json:"already_recorded,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// decodeImagePayload accepts raw base64 or a browser data URL.
func decodeImagePayload(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}

// Identify runs one camera frame through detection, matching and
// recording for the course in the URL.
func (h *TerminalHandler) Identify(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courseID := chi.URLParam(r, "courseID")
	course, err := h.courses.GetCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load course")
		return
	}

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	frame, err := decodeImagePayload(req.Image)
	if err != nil || len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "invalid image payload")
		return
	}

	userSettings, err := h.settings.GetSettings(r.Context(), session.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	policy, err := attendance.ParseCutoff(userSettings.LateCutoffTime)
	if err != nil {
		policy = attendance.DefaultCutoff
	}

	detection, err := h.detector.DetectBest(r.Context(), frame)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			respondJSON(w, http.StatusOK, IdentifyResponse{Recognized: false, Reason: "no_face"})
			return
		}
		log.Printf("face detection failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}

	candidates, err := h.students.ListEnrolledByClass(r.Context(), course.ClassID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load students")
		return
	}
	enrolled := make([]face.Enrolled, 0, len(candidates))
	byID := make(map[string]database.Student, len(candidates))
	for _, s := range candidates {
		enrolled = append(enrolled, face.Enrolled{StudentID: s.ID, Embedding: s.Embedding})
		byID[s.ID] = s
	}

	observed := detection.Embedding.Normalized()
	match, ok := face.BestMatch(observed, enrolled, userSettings.MatchingThreshold)
	if !ok {
		respondJSON(w, http.StatusOK, IdentifyResponse{Recognized: false, Reason: "no_match"})
		return
	}
	student := byID[match.StudentID]

	resp := IdentifyResponse{
		Recognized:  true,
		StudentID:   student.ID,
		StudentName: student.FullName,
		RollNo:      student.RollNo,
		Confidence:  match.Confidence,
	}

	rec, err := h.recorder.Record(r.Context(), attendance.Mark{
		StudentID:  student.ID,
		CourseID:   course.ID,
		ClassID:    course.ClassID,
		Confidence: match.Confidence,
		MarkedBy:   database.MarkedByRecognition,
	}, h.now(), policy)
	switch {
	case errors.Is(err, database.ErrAlreadyRecorded):
		resp.AlreadyRecorded = true
	case err != nil:
		log.Printf("recording attendance for %s: %v", student.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	default:
		resp.Status = string(rec.Status)
	}

	// Drift the stored embedding toward today's observation. Losing
	// this update never fails the identification.
	if adapted, ok := face.Adapt(student.Embedding, observed, match.Confidence); ok {
		if err := h.students.UpdateEmbedding(r.Context(), student.ID, adapted); err != nil {
			log.Printf("adapting embedding for %s: %v", student.ID, err)
		} else if h.index != nil {
			h.index.Upsert(student.ID, adapted)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// AttendanceEntry is one row in the today-attendance response.
type AttendanceEntry struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	RollNo      string  `json:"roll_no"`
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
	MarkedBy    string  `json:"marked_by"`
}

// TodayAttendance returns the current day's rows for a course, with
// students who have no row reported as absent.
func (h *TerminalHandler) TodayAttendance(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	course, err := h.courses.GetCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load course")
		return
	}

	day := attendance.SessionDate(h.now())
	records, err := h.records.ListForCourseDay(r.Context(), course.ID, day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	roster, err := h.students.ListByClass(r.Context(), course.ClassID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load students")
		return
	}

	marked := make(map[string]database.AttendanceRecord, len(records))
	for _, rec := range records {
		marked[rec.StudentID] = rec
	}

	entries := make([]AttendanceEntry, 0, len(roster))
	for _, s := range roster {
		entry := AttendanceEntry{
			StudentID:   s.ID,
			StudentName: s.FullName,
			RollNo:      s.RollNo,
			Status:      string(database.StatusAbsent),
		}
		if rec, ok := marked[s.ID]; ok {
			entry.Status = string(rec.Status)
			entry.Timestamp = rec.Timestamp.Format(time.RFC3339)
			entry.Confidence = rec.ConfidenceScore
			entry.MarkedBy = string(rec.MarkedBy)
		}
		entries = append(entries, entry)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":       day.Format("2006-01-02"),
		"attendance": entries,
	})
}

type manualMarkRequest struct {
	StudentID string `json:"student_id"`
}

// MarkManual records attendance for one student without the camera,
// the teacher's escape hatch when recognition misses someone.
func (h *TerminalHandler) MarkManual(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courseID := chi.URLParam(r, "courseID")
	course, err := h.courses.GetCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load course")
		return
	}

	var req manualMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == "" {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	userSettings, err := h.settings.GetSettings(r.Context(), session.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	policy, err := attendance.ParseCutoff(userSettings.LateCutoffTime)
	if err != nil {
		policy = attendance.DefaultCutoff
	}

	rec, err := h.recorder.Record(r.Context(), attendance.Mark{
		StudentID: req.StudentID,
		CourseID:  course.ID,
		ClassID:   course.ClassID,
		MarkedBy:  database.MarkedByManual,
	}, h.now(), policy)
	switch {
	case errors.Is(err, database.ErrAlreadyRecorded):
		respondError(w, http.StatusConflict, "attendance already recorded for today")
		return
	case errors.Is(err, database.ErrMissingIdentity):
		respondError(w, http.StatusNotFound, "student not found")
		return
	case err != nil:
		log.Printf("manual marking for %s: %v", sanitizeForLog(req.StudentID), err)
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  string(rec.Status),
	})
}
