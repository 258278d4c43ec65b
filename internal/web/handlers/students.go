package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/vision"
)

// Enrollment samples closer than this to another student's stored
// embedding are suspicious enough to refuse.
const duplicateEnrollDistance = 0.35

// StudentsHandler exposes class rosters and face enrollment.
type StudentsHandler struct {
	students database.StudentStore
	courses  database.CourseStore
	detector FaceDetector
	index    *face.Index
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(students database.StudentStore, courses database.CourseStore, detector FaceDetector, index *face.Index) *StudentsHandler {
	return &StudentsHandler{
		students: students,
		courses:  courses,
		detector: detector,
		index:    index,
	}
}

// StudentSummary is one student in a roster response. Embeddings never
// leave the server.
type StudentSummary struct {
	ID       string `json:"id"`
	RollNo   string `json:"roll_no"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Enrolled bool   `json:"enrolled"`
}

// ClassStudents returns the full roster of one class.
func (h *StudentsHandler) ClassStudents(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if _, err := h.courses.GetClass(r.Context(), classID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "class not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load class")
		return
	}

	roster, err := h.students.ListByClass(r.Context(), classID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load students")
		return
	}

	summaries := make([]StudentSummary, 0, len(roster))
	for _, s := range roster {
		summaries = append(summaries, StudentSummary{
			ID:       s.ID,
			RollNo:   s.RollNo,
			FullName: s.FullName,
			Email:    s.Email,
			Enrolled: s.Enrolled,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"students": summaries})
}

type enrollRequest struct {
	Images []string `json:"images"` // base64 JPEG capture samples
}

// EnrollResponse reports the outcome of a face enrollment.
type EnrollResponse struct {
	Success      bool   `json:"success"`
	SamplesUsed  int    `json:"samples_used"`
	Error        string `json:"error,omitempty"`
	ConflictWith string `json:"conflict_with,omitempty"`
}

// Enroll captures a student's reference embedding from one or more
// camera samples. Each sample is detected independently; the accepted
// embeddings are averaged and unit-normalized before storage. A sample
// set whose average sits on top of another student's stored embedding
// is rejected rather than silently creating a look-alike pair.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	student, err := h.students.GetStudent(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Images) == 0 {
		respondError(w, http.StatusBadRequest, "at least one image is required")
		return
	}

	sum := make(face.Embedding, face.Dim)
	used := 0
	for _, payload := range req.Images {
		frame, err := decodeImagePayload(payload)
		if err != nil || len(frame) == 0 {
			continue
		}
		detection, err := h.detector.DetectBest(r.Context(), frame)
		if err != nil {
			if errors.Is(err, vision.ErrNoFace) {
				continue
			}
			log.Printf("enrollment detection failed: %v", err)
			respondError(w, http.StatusBadGateway, "face detection unavailable")
			return
		}
		for i, v := range detection.Embedding {
			sum[i] += v
		}
		used++
	}

	if used == 0 {
		respondJSON(w, http.StatusOK, EnrollResponse{
			Success: false,
			Error:   "no usable face found in any sample",
		})
		return
	}

	for i := range sum {
		sum[i] /= float32(used)
	}
	reference := sum.Normalized()

	if conflict, ok := h.duplicateOf(studentID, reference); ok {
		respondJSON(w, http.StatusConflict, EnrollResponse{
			Success:      false,
			SamplesUsed:  used,
			Error:        "face is already enrolled for another student",
			ConflictWith: conflict,
		})
		return
	}

	if err := h.students.Enroll(r.Context(), studentID, reference); err != nil {
		log.Printf("enrolling %s: %v", studentID, err)
		respondError(w, http.StatusInternalServerError, "failed to store enrollment")
		return
	}
	if h.index != nil {
		h.index.Upsert(student.ID, reference)
	}

	respondJSON(w, http.StatusOK, EnrollResponse{
		Success:     true,
		SamplesUsed: used,
	})
}

// duplicateOf checks the school-wide index for a different student whose
// stored embedding is nearly identical to the candidate.
func (h *StudentsHandler) duplicateOf(studentID string, emb face.Embedding) (string, bool) {
	if h.index == nil {
		return "", false
	}
	// k=2 so a re-enrolling student's own old embedding cannot hide a
	// conflicting neighbor behind it.
	ids, dists := h.index.Nearest(emb, 2)
	for i, id := range ids {
		if id == studentID {
			continue
		}
		if dists[i] < duplicateEnrollDistance {
			return id, true
		}
	}
	return "", false
}
