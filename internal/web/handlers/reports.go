package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/database"
)

// ReportsHandler builds attendance reports over date ranges. Absence is
// derived here: a student with no row on a day the course met counts as
// absent, nothing is ever stored for them.
type ReportsHandler struct {
	students database.StudentStore
	courses  database.CourseStore
	records  database.AttendanceStore
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(students database.StudentStore, courses database.CourseStore, records database.AttendanceStore) *ReportsHandler {
	return &ReportsHandler{
		students: students,
		courses:  courses,
		records:  records,
	}
}

func parseDateRange(r *http.Request) (from, to time.Time, err error) {
	const layout = "2006-01-02"
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	now := time.Now()
	if toStr == "" {
		to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	} else if to, err = time.ParseInLocation(layout, toStr, time.Local); err != nil {
		return
	}
	if fromStr == "" {
		from = to.AddDate(0, -1, 0)
	} else if from, err = time.ParseInLocation(layout, fromStr, time.Local); err != nil {
		return
	}
	if from.After(to) {
		err = errors.New("from is after to")
	}
	return
}

// ReportRecord is one attendance row in a range report.
type ReportRecord struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	RollNo      string  `json:"roll_no"`
	Date        string  `json:"date"`
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
	MarkedBy    string  `json:"marked_by"`
}

// Range returns the raw rows of one course over a date range,
// optionally filtered by status.
func (h *ReportsHandler) Range(w http.ResponseWriter, r *http.Request) {
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

	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range: "+err.Error())
		return
	}

	status := database.AttendanceStatus(r.URL.Query().Get("status"))
	switch status {
	case "", database.StatusPresent, database.StatusLate:
	case database.StatusAbsent:
		respondError(w, http.StatusBadRequest, "absent rows are derived, use the summary report")
		return
	default:
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	records, err := h.records.ListForCourseRange(r.Context(), course.ID, from, to, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	names, err := h.rosterNames(r, course.ClassID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load students")
		return
	}

	rows := make([]ReportRecord, 0, len(records))
	for _, rec := range records {
		row := ReportRecord{
			StudentID:  rec.StudentID,
			Date:       rec.SessionDate.Format("2006-01-02"),
			Status:     string(rec.Status),
			Timestamp:  rec.Timestamp.Format(time.RFC3339),
			Confidence: rec.ConfidenceScore,
			MarkedBy:   string(rec.MarkedBy),
		}
		if s, ok := names[rec.StudentID]; ok {
			row.StudentName = s.FullName
			row.RollNo = s.RollNo
		}
		rows = append(rows, row)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"course_id": course.ID,
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
		"records":   rows,
	})
}

// StudentSummaryRow aggregates one student over the reporting range.
type StudentSummaryRow struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	RollNo      string  `json:"roll_no"`
	Present     int     `json:"present"`
	Late        int     `json:"late"`
	Absent      int     `json:"absent"`
	Percentage  float64 `json:"percentage"`
}

// Summary aggregates per-student counts for one course over a date
// range. A day counts as a held session when at least one student has a
// row; enrolled students without a row that day are absent.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
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

	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range: "+err.Error())
		return
	}

	records, err := h.records.ListForCourseRange(r.Context(), course.ID, from, to, "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	roster, err := h.students.ListByClass(r.Context(), course.ClassID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load students")
		return
	}

	sessionDays := make(map[string]struct{})
	type key struct{ student, day string }
	statusByKey := make(map[key]database.AttendanceStatus, len(records))
	for _, rec := range records {
		day := rec.SessionDate.Format("2006-01-02")
		sessionDays[day] = struct{}{}
		statusByKey[key{rec.StudentID, day}] = rec.Status
	}

	rows := make([]StudentSummaryRow, 0, len(roster))
	for _, s := range roster {
		row := StudentSummaryRow{
			StudentID:   s.ID,
			StudentName: s.FullName,
			RollNo:      s.RollNo,
		}
		for day := range sessionDays {
			switch statusByKey[key{s.ID, day}] {
			case database.StatusPresent:
				row.Present++
			case database.StatusLate:
				row.Late++
			default:
				row.Absent++
			}
		}
		if len(sessionDays) > 0 {
			row.Percentage = float64(row.Present+row.Late) / float64(len(sessionDays)) * 100
		}
		rows = append(rows, row)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"course_id":     course.ID,
		"from":          from.Format("2006-01-02"),
		"to":            to.Format("2006-01-02"),
		"sessions_held": len(sessionDays),
		"students":      rows,
	})
}

func (h *ReportsHandler) rosterNames(r *http.Request, classID string) (map[string]database.Student, error) {
	roster, err := h.students.ListByClass(r.Context(), classID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]database.Student, len(roster))
	for _, s := range roster {
		names[s.ID] = s
	}
	return names, nil
}
