package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/facemark/facemark/internal/database"
)

func newReportsFixture(t *testing.T) (*ReportsHandler, *memAttendance) {
	t.Helper()

	students := newMemStudents(
		database.Student{ID: "student-1", RollNo: "CS-001", FullName: "Amara Osei", ClassID: testClassID, Enrolled: true, Embedding: axisEmbedding(0)},
		database.Student{ID: "student-2", RollNo: "CS-002", FullName: "Jonas Lind", ClassID: testClassID, Enrolled: true, Embedding: axisEmbedding(1)},
	)
	courses := newMemCourses(
		[]database.Class{{ID: testClassID, Name: "CS 3rd semester"}},
		[]database.Course{{ID: testCourseID, Name: "Databases", ClassID: testClassID, InstructorID: testTeacherID}},
	)
	records := newMemAttendance()
	return NewReportsHandler(students, courses, records), records
}

func seedRecord(t *testing.T, records *memAttendance, studentID string, day time.Time, status database.AttendanceStatus) {
	t.Helper()
	err := records.Insert(t.Context(), &database.AttendanceRecord{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		CourseID:    testCourseID,
		ClassID:     testClassID,
		SessionDate: day,
		Timestamp:   day.Add(9 * time.Hour),
		Status:      status,
		MarkedBy:    database.MarkedByRecognition,
	})
	if err != nil {
		t.Fatalf("seeding record: %v", err)
	}
}

func reportRequest(path string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	req = requestWithSession(req, testTeacherID, database.RoleTeacher)
	return requestWithChiParams(req, map[string]string{"courseID": testCourseID})
}

func TestReportsRange(t *testing.T) {
	h, records := newReportsFixture(t)

	day1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)
	seedRecord(t, records, "student-1", day1, database.StatusPresent)
	seedRecord(t, records, "student-2", day1, database.StatusLate)
	seedRecord(t, records, "student-1", day2, database.StatusPresent)

	rec := httptest.NewRecorder()
	h.Range(rec, reportRequest("/api/v1/reports/courses/course-1?from=2026-03-09&to=2026-03-10"))
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Records []ReportRecord `json:"records"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(resp.Records))
	}
	for _, row := range resp.Records {
		if row.StudentName == "" {
			t.Errorf("record %s has no resolved student name", row.StudentID)
		}
	}

	t.Run("status filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Range(rec, reportRequest("/api/v1/reports/courses/course-1?from=2026-03-09&to=2026-03-10&status=late"))
		assertStatusCode(t, rec, http.StatusOK)

		var resp struct {
			Records []ReportRecord `json:"records"`
		}
		parseJSONResponse(t, rec, &resp)
		if len(resp.Records) != 1 || resp.Records[0].StudentID != "student-2" {
			t.Errorf("late filter returned %+v", resp.Records)
		}
	})

	t.Run("absent filter rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Range(rec, reportRequest("/api/v1/reports/courses/course-1?status=absent"))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Range(rec, reportRequest("/api/v1/reports/courses/course-1?from=2026-03-10&to=2026-03-09"))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})
}

func TestReportsSummary(t *testing.T) {
	h, records := newReportsFixture(t)

	day1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)
	// Two held sessions. student-1 attends both, student-2 only day one
	// and late.
	seedRecord(t, records, "student-1", day1, database.StatusPresent)
	seedRecord(t, records, "student-2", day1, database.StatusLate)
	seedRecord(t, records, "student-1", day2, database.StatusPresent)

	rec := httptest.NewRecorder()
	h.Summary(rec, reportRequest("/api/v1/reports/courses/course-1/summary?from=2026-03-09&to=2026-03-10"))
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		SessionsHeld int                 `json:"sessions_held"`
		Students     []StudentSummaryRow `json:"students"`
	}
	parseJSONResponse(t, rec, &resp)

	if resp.SessionsHeld != 2 {
		t.Fatalf("sessions_held = %d, want 2", resp.SessionsHeld)
	}

	byID := make(map[string]StudentSummaryRow)
	for _, row := range resp.Students {
		byID[row.StudentID] = row
	}

	s1 := byID["student-1"]
	if s1.Present != 2 || s1.Late != 0 || s1.Absent != 0 {
		t.Errorf("student-1 = %+v, want 2 present", s1)
	}
	if s1.Percentage != 100 {
		t.Errorf("student-1 percentage = %v, want 100", s1.Percentage)
	}

	s2 := byID["student-2"]
	if s2.Present != 0 || s2.Late != 1 || s2.Absent != 1 {
		t.Errorf("student-2 = %+v, want 1 late and 1 derived absent", s2)
	}
	if s2.Percentage != 50 {
		t.Errorf("student-2 percentage = %v, want 50", s2.Percentage)
	}
}

func TestReportsSummary_NoSessions(t *testing.T) {
	h, _ := newReportsFixture(t)

	rec := httptest.NewRecorder()
	h.Summary(rec, reportRequest("/api/v1/reports/courses/course-1/summary?from=2026-03-09&to=2026-03-10"))
	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		SessionsHeld int                 `json:"sessions_held"`
		Students     []StudentSummaryRow `json:"students"`
	}
	parseJSONResponse(t, rec, &resp)
	if resp.SessionsHeld != 0 {
		t.Errorf("sessions_held = %d, want 0", resp.SessionsHeld)
	}
	for _, row := range resp.Students {
		if row.Absent != 0 || row.Percentage != 0 {
			t.Errorf("row %+v counts absences with no sessions held", row)
		}
	}
}
