package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/vision"
)

const (
	testClassID   = "class-1"
	testCourseID  = "course-1"
	testTeacherID = "teacher-1"
)

func newTerminalFixture(t *testing.T, detector FaceDetector) (*TerminalHandler, *memStudents, *memAttendance) {
	t.Helper()

	students := newMemStudents(
		database.Student{
			ID: "student-1", RollNo: "CS-001", FullName: "Amara Osei",
			ClassID: testClassID, Embedding: axisEmbedding(0), Enrolled: true,
		},
		database.Student{
			ID: "student-2", RollNo: "CS-002", FullName: "Jonas Lind",
			ClassID: testClassID, Embedding: axisEmbedding(1), Enrolled: true,
		},
		database.Student{
			ID: "student-3", RollNo: "CS-003", FullName: "Priya Nair",
			ClassID: testClassID,
		},
	)
	courses := newMemCourses(
		[]database.Class{{ID: testClassID, Name: "CS 3rd semester"}},
		[]database.Course{{ID: testCourseID, Name: "Databases", ClassID: testClassID, InstructorID: testTeacherID}},
	)
	records := newMemAttendance()
	h := NewTerminalHandler(students, courses, records, newMemSettings(),
		attendance.NewRecorder(records), detector, nil)
	// Fixed marking time, before the 09:15 default cutoff.
	h.now = func() time.Time {
		return time.Date(2026, 3, 9, 9, 10, 0, 0, time.Local)
	}
	return h, students, records
}

func identifyBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	frame := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9})
	body, err := json.Marshal(map[string]string{"image": frame})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewBuffer(body)
}

func identifyRequestFor(t *testing.T, courseID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/terminal/courses/"+courseID+"/identify", identifyBody(t))
	req.Header.Set("Content-Type", "application/json")
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	return requestWithChiParams(req, map[string]string{"courseID": courseID})
}

func TestIdentify_MatchAndRecord(t *testing.T) {
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.95,
	}}
	h, students, _ := newTerminalFixture(t, detector)

	rec := httptest.NewRecorder()
	h.Identify(rec, identifyRequestFor(t, testCourseID))

	assertStatusCode(t, rec, http.StatusOK)
	var resp IdentifyResponse
	parseJSONResponse(t, rec, &resp)

	if !resp.Recognized {
		t.Fatalf("expected recognition, got %+v", resp)
	}
	if resp.StudentID != "student-1" {
		t.Errorf("StudentID = %q, want student-1", resp.StudentID)
	}
	if resp.Status != string(database.StatusPresent) {
		t.Errorf("Status = %q, want present (before cutoff)", resp.Status)
	}
	if resp.AlreadyRecorded {
		t.Error("first identification reported already_recorded")
	}

	// An exact observation keeps the stored embedding on its axis; the
	// adaptation write must still land.
	s, err := students.GetStudent(t.Context(), "student-1")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if s.Embedding[0] < 0.99 {
		t.Errorf("adapted embedding drifted: %v", s.Embedding[0])
	}
}

func TestIdentify_SecondHitIsAlreadyRecorded(t *testing.T) {
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.95,
	}}
	h, _, _ := newTerminalFixture(t, detector)

	first := httptest.NewRecorder()
	h.Identify(first, identifyRequestFor(t, testCourseID))
	assertStatusCode(t, first, http.StatusOK)

	second := httptest.NewRecorder()
	h.Identify(second, identifyRequestFor(t, testCourseID))
	assertStatusCode(t, second, http.StatusOK)

	var resp IdentifyResponse
	parseJSONResponse(t, second, &resp)
	if !resp.Recognized || !resp.AlreadyRecorded {
		t.Errorf("second identification = %+v, want recognized and already_recorded", resp)
	}
}

func TestIdentify_LateAfterCutoff(t *testing.T) {
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(1),
		Confidence: 0.9,
	}}
	h, _, _ := newTerminalFixture(t, detector)
	h.now = func() time.Time {
		return time.Date(2026, 3, 9, 9, 15, 1, 0, time.Local)
	}

	rec := httptest.NewRecorder()
	h.Identify(rec, identifyRequestFor(t, testCourseID))

	var resp IdentifyResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Status != string(database.StatusLate) {
		t.Errorf("Status = %q, want late one second after cutoff", resp.Status)
	}
}

func TestIdentify_NoFace(t *testing.T) {
	h, _, records := newTerminalFixture(t, &fakeDetector{err: vision.ErrNoFace})

	rec := httptest.NewRecorder()
	h.Identify(rec, identifyRequestFor(t, testCourseID))

	assertStatusCode(t, rec, http.StatusOK)
	var resp IdentifyResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Recognized || resp.Reason != "no_face" {
		t.Errorf("response = %+v, want unrecognized with reason no_face", resp)
	}
	if len(records.records) != 0 {
		t.Error("a frame with no face produced an attendance row")
	}
}

func TestIdentify_StrangerBeyondThreshold(t *testing.T) {
	// Orthogonal to every enrolled embedding: distance sqrt(2) > 0.75.
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(7),
		Confidence: 0.95,
	}}
	h, _, records := newTerminalFixture(t, detector)

	rec := httptest.NewRecorder()
	h.Identify(rec, identifyRequestFor(t, testCourseID))

	assertStatusCode(t, rec, http.StatusOK)
	var resp IdentifyResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Recognized || resp.Reason != "no_match" {
		t.Errorf("response = %+v, want unrecognized with reason no_match", resp)
	}
	if len(records.records) != 0 {
		t.Error("an unmatched face produced an attendance row")
	}
}

func TestIdentify_UnknownCourse(t *testing.T) {
	h, _, _ := newTerminalFixture(t, &fakeDetector{})

	rec := httptest.NewRecorder()
	h.Identify(rec, identifyRequestFor(t, "missing-course"))

	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "course not found")
}

func TestIdentify_BadImagePayload(t *testing.T) {
	h, _, _ := newTerminalFixture(t, &fakeDetector{})

	body := bytes.NewBufferString(`{"image": "not base64!!!"}`)
	req := httptest.NewRequest("POST", "/api/v1/terminal/courses/course-1/identify", body)
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	req = requestWithChiParams(req, map[string]string{"courseID": testCourseID})

	rec := httptest.NewRecorder()
	h.Identify(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestTodayAttendance_DerivesAbsent(t *testing.T) {
	detector := &fakeDetector{detection: &vision.Detection{
		Embedding:  axisEmbedding(0),
		Confidence: 0.95,
	}}
	h, _, _ := newTerminalFixture(t, detector)

	marked := httptest.NewRecorder()
	h.Identify(marked, identifyRequestFor(t, testCourseID))
	assertStatusCode(t, marked, http.StatusOK)

	req := httptest.NewRequest("GET", "/api/v1/terminal/courses/course-1/today", nil)
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	req = requestWithChiParams(req, map[string]string{"courseID": testCourseID})

	rec := httptest.NewRecorder()
	h.TodayAttendance(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Attendance []AttendanceEntry `json:"attendance"`
	}
	parseJSONResponse(t, rec, &resp)

	if len(resp.Attendance) != 3 {
		t.Fatalf("expected 3 roster entries, got %d", len(resp.Attendance))
	}
	byID := make(map[string]AttendanceEntry)
	for _, e := range resp.Attendance {
		byID[e.StudentID] = e
	}
	if byID["student-1"].Status != string(database.StatusPresent) {
		t.Errorf("student-1 status = %q, want present", byID["student-1"].Status)
	}
	if byID["student-2"].Status != string(database.StatusAbsent) {
		t.Errorf("student-2 status = %q, want derived absent", byID["student-2"].Status)
	}
	if byID["student-3"].Status != string(database.StatusAbsent) {
		t.Errorf("student-3 status = %q, want derived absent", byID["student-3"].Status)
	}
}

func TestMarkManual(t *testing.T) {
	h, _, records := newTerminalFixture(t, &fakeDetector{})

	markReq := func() *http.Request {
		body := bytes.NewBufferString(`{"student_id": "student-3"}`)
		req := httptest.NewRequest("POST", "/api/v1/terminal/courses/course-1/mark", body)
		req = requestWithSession(req, testTeacherID, database.RoleTeacher)
		return requestWithChiParams(req, map[string]string{"courseID": testCourseID})
	}

	rec := httptest.NewRecorder()
	h.MarkManual(rec, markReq())
	assertStatusCode(t, rec, http.StatusOK)

	if len(records.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records.records))
	}
	for _, stored := range records.records {
		if stored.MarkedBy != database.MarkedByManual {
			t.Errorf("MarkedBy = %q, want manual", stored.MarkedBy)
		}
	}

	// Same student, same day: conflict.
	again := httptest.NewRecorder()
	h.MarkManual(again, markReq())
	assertStatusCode(t, again, http.StatusConflict)
}

func TestTeacherData(t *testing.T) {
	h, _, _ := newTerminalFixture(t, &fakeDetector{})

	req := httptest.NewRequest("GET", "/api/v1/terminal/teacher-data", nil)
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)

	rec := httptest.NewRecorder()
	h.TeacherData(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Courses []CourseSummary `json:"courses"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Courses) != 1 {
		t.Fatalf("expected 1 course, got %d", len(resp.Courses))
	}
	if resp.Courses[0].ClassName != "CS 3rd semester" {
		t.Errorf("ClassName = %q", resp.Courses[0].ClassName)
	}
}
