package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// AttendanceRepository implements database.AttendanceStore. The unique
// index on (student_id, course_id, session_date) is the authority for
// the one-row-per-day invariant; concurrent inserts race down to a
// single winner here.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates an attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Insert persists one attendance row. A unique-index violation maps to
// ErrAlreadyRecorded and a broken student/course/class reference to
// ErrMissingIdentity.
func (r *AttendanceRepository) Insert(ctx context.Context, rec *database.AttendanceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance
			(id, student_id, course_id, class_id, session_date, ts, status, confidence_score, marked_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID, rec.StudentID, rec.CourseID, rec.ClassID,
		rec.SessionDate.Format("2006-01-02"), rec.Timestamp,
		rec.Status, rec.ConfidenceScore, rec.MarkedBy)
	if isPQError(err, codeUniqueViolation) {
		return database.ErrAlreadyRecorded
	}
	if isPQError(err, codeForeignKeyViolation) {
		return database.ErrMissingIdentity
	}
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// ExistsForDay reports whether a row already exists for the student,
// course and day. It is a cheap pre-check; Insert remains the authority.
func (r *AttendanceRepository) ExistsForDay(ctx context.Context, studentID, courseID string, day time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance
			WHERE student_id = $1 AND course_id = $2 AND session_date = $3
		)
	`, studentID, courseID, day.Format("2006-01-02")).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// ListForCourseDay returns every row of one course session.
func (r *AttendanceRepository) ListForCourseDay(ctx context.Context, courseID string, day time.Time) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, course_id, class_id, session_date, ts, status, confidence_score, marked_by
		FROM attendance
		WHERE course_id = $1 AND session_date = $2
		ORDER BY ts
	`, courseID, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListForCourseRange returns the rows of one course between two days
// inclusive, optionally filtered by status.
func (r *AttendanceRepository) ListForCourseRange(ctx context.Context, courseID string, from, to time.Time, status database.AttendanceStatus) ([]database.AttendanceRecord, error) {
	query := `
		SELECT id, student_id, course_id, class_id, session_date, ts, status, confidence_score, marked_by
		FROM attendance
		WHERE course_id = $1 AND session_date BETWEEN $2 AND $3
	`
	args := []any{courseID, from.Format("2006-01-02"), to.Format("2006-01-02")}
	if status != "" {
		query += " AND status = $4"
		args = append(args, status)
	}
	query += " ORDER BY session_date, ts"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]database.AttendanceRecord, error) {
	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(
			&rec.ID, &rec.StudentID, &rec.CourseID, &rec.ClassID,
			&rec.SessionDate, &rec.Timestamp,
			&rec.Status, &rec.ConfidenceScore, &rec.MarkedBy,
		); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
