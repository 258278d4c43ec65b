package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
	"github.com/google/uuid"
)

// Store is the slice of attendance persistence the recorder needs. The
// implementation must make Insert atomic with respect to concurrent
// inserts for the same key: a unique constraint at the storage boundary,
// reported as database.ErrAlreadyRecorded.
type Store interface {
	ExistsForDay(ctx context.Context, studentID, courseID string, day time.Time) (bool, error)
	Insert(ctx context.Context, rec *database.AttendanceRecord) error
}

// Mark is one identification event to be recorded.
type Mark struct {
	StudentID  string
	CourseID   string
	ClassID    string
	Confidence float64
	MarkedBy   database.MarkedBy
}

// Recorder turns identification events into attendance rows.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists m for the calendar day of now, deciding present vs
// late against the caller's cutoff policy.
//
// Returns database.ErrAlreadyRecorded when the student already has a row
// for this course today — both from the fast existence check and from a
// concurrent insert losing the race at the unique constraint, so exactly
// one of two simultaneous calls for the same key can succeed. Returns
// database.ErrMissingIdentity when the student, course or class does not
// resolve.
func (r *Recorder) Record(ctx context.Context, m Mark, now time.Time, policy CutoffPolicy) (*database.AttendanceRecord, error) {
	if m.StudentID == "" || m.CourseID == "" || m.ClassID == "" {
		return nil, database.ErrMissingIdentity
	}

	day := SessionDate(now)
	exists, err := r.store.ExistsForDay(ctx, m.StudentID, m.CourseID, day)
	if err != nil {
		return nil, fmt.Errorf("checking existing attendance: %w", err)
	}
	if exists {
		return nil, database.ErrAlreadyRecorded
	}

	markedBy := m.MarkedBy
	if markedBy == "" {
		markedBy = database.MarkedByRecognition
	}

	rec := &database.AttendanceRecord{
		ID:              uuid.NewString(),
		StudentID:       m.StudentID,
		CourseID:        m.CourseID,
		ClassID:         m.ClassID,
		SessionDate:     day,
		Timestamp:       now,
		Status:          policy.StatusAt(now),
		ConfidenceScore: m.Confidence,
		MarkedBy:        markedBy,
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
