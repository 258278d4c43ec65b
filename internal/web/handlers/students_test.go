package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/vision"
)

func newStudentsFixture(t *testing.T, detector FaceDetector) (*StudentsHandler, *memStudents, *face.Index) {
	t.Helper()

	students := newMemStudents(
		database.Student{ID: "student-1", RollNo: "CS-001", FullName: "Amara Osei", ClassID: testClassID, Enrolled: true, Embedding: axisEmbedding(0)},
		database.Student{ID: "student-2", RollNo: "CS-002", FullName: "Jonas Lind", ClassID: testClassID},
	)
	courses := newMemCourses(
		[]database.Class{{ID: testClassID, Name: "CS 3rd semester"}},
		nil,
	)
	index := face.NewIndex()
	index.Build([]face.Enrolled{{StudentID: "student-1", Embedding: axisEmbedding(0)}})
	return NewStudentsHandler(students, courses, detector, index), students, index
}

func enrollRequestFor(t *testing.T, studentID string, images int) *http.Request {
	t.Helper()
	frames := make([]string, images)
	for i := range frames {
		frames[i] = base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, byte(i), 0xFF, 0xD9})
	}
	body, err := json.Marshal(map[string]any{"images": frames})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/v1/students/"+studentID+"/enroll", bytes.NewBuffer(body))
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	return requestWithChiParams(req, map[string]string{"studentID": studentID})
}

func TestClassStudents(t *testing.T) {
	h, _, _ := newStudentsFixture(t, &fakeDetector{})

	req := httptest.NewRequest("GET", "/api/v1/classes/class-1/students", nil)
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	req = requestWithChiParams(req, map[string]string{"classID": testClassID})

	rec := httptest.NewRecorder()
	h.ClassStudents(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Students []StudentSummary `json:"students"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(resp.Students))
	}
	for _, s := range resp.Students {
		switch s.ID {
		case "student-1":
			if !s.Enrolled {
				t.Error("student-1 should be enrolled")
			}
		case "student-2":
			if s.Enrolled {
				t.Error("student-2 should not be enrolled")
			}
		}
	}
}

func TestClassStudents_UnknownClass(t *testing.T) {
	h, _, _ := newStudentsFixture(t, &fakeDetector{})

	req := httptest.NewRequest("GET", "/api/v1/classes/missing/students", nil)
	req = requestWithChiParams(req, map[string]string{"classID": "missing"})

	rec := httptest.NewRecorder()
	h.ClassStudents(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestEnroll_AveragesAndStores(t *testing.T) {
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(3),
		Confidence: 0.9,
	}}
	h, students, index := newStudentsFixture(t, detector)

	rec := httptest.NewRecorder()
	h.Enroll(rec, enrollRequestFor(t, "student-2", 3))
	assertStatusCode(t, rec, http.StatusOK)

	var resp EnrollResponse
	parseJSONResponse(t, rec, &resp)
	if !resp.Success || resp.SamplesUsed != 3 {
		t.Fatalf("response = %+v, want success with 3 samples", resp)
	}

	s, err := students.GetStudent(t.Context(), "student-2")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if !s.Enrolled {
		t.Error("student not marked enrolled")
	}
	if got := s.Embedding.Norm(); got < 0.999 || got > 1.001 {
		t.Errorf("stored embedding norm = %v, want 1", got)
	}
	if index.Count() != 2 {
		t.Errorf("index count = %d, want 2", index.Count())
	}
}

func TestEnroll_DuplicateFaceRejected(t *testing.T) {
	// Identical to student-1's stored embedding.
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.9,
	}}
	h, students, _ := newStudentsFixture(t, detector)

	rec := httptest.NewRecorder()
	h.Enroll(rec, enrollRequestFor(t, "student-2", 2))
	assertStatusCode(t, rec, http.StatusConflict)

	var resp EnrollResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Success {
		t.Fatal("duplicate face was accepted")
	}
	if resp.ConflictWith != "student-1" {
		t.Errorf("ConflictWith = %q, want student-1", resp.ConflictWith)
	}

	s, err := students.GetStudent(t.Context(), "student-2")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if s.Enrolled {
		t.Error("rejected enrollment still flipped the enrolled flag")
	}
}

func TestEnroll_ReEnrollSelfAllowed(t *testing.T) {
	// Re-capturing the same student's face must not trip the duplicate
	// guard against their own entry.
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.9,
	}}
	h, _, _ := newStudentsFixture(t, detector)

	rec := httptest.NewRecorder()
	h.Enroll(rec, enrollRequestFor(t, "student-1", 1))
	assertStatusCode(t, rec, http.StatusOK)
}

func TestEnroll_ConflictBehindOwnEmbedding(t *testing.T) {
	// Re-capturing student-1's face must still catch another student
	// stored almost on top of it, even though student-1's own old
	// embedding is the single nearest neighbor.
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.9,
	}}
	h, _, index := newStudentsFixture(t, detector)

	near := axisEmbedding(0)
	near[0] = 0.98
	near[1] = 0.199
	index.Upsert("student-3", near.Normalized())

	rec := httptest.NewRecorder()
	h.Enroll(rec, enrollRequestFor(t, "student-1", 1))
	assertStatusCode(t, rec, http.StatusConflict)

	var resp EnrollResponse
	parseJSONResponse(t, rec, &resp)
	if resp.ConflictWith != "student-3" {
		t.Errorf("ConflictWith = %q, want student-3", resp.ConflictWith)
	}
}

func TestEnroll_NoUsableSamples(t *testing.T) {
	h, _, _ := newStudentsFixture(t, &fakeDetector{err: vision.ErrNoFace})

	rec := httptest.NewRecorder()
	h.Enroll(rec, enrollRequestFor(t, "student-2", 2))
	assertStatusCode(t, rec, http.StatusOK)

	var resp EnrollResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Success || resp.SamplesUsed != 0 {
		t.Errorf("response = %+v, want failure with 0 samples", resp)
	}
}

func TestEnroll_Validation(t *testing.T) {
	h, _, _ := newStudentsFixture(t, &fakeDetector{})

	t.Run("unknown student", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Enroll(rec, enrollRequestFor(t, "missing", 1))
		assertStatusCode(t, rec, http.StatusNotFound)
	})

	t.Run("no images", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Enroll(rec, enrollRequestFor(t, "student-2", 0))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})
}
