package database

import (
	"context"
	"time"

	"github.com/facemark/facemark/internal/face"
)

// UserStore resolves staff accounts for authentication.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
}

// StudentStore provides access to students and their embeddings.
// UpdateEmbedding is the only write path that replaces an embedding
// after enrollment.
type StudentStore interface {
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListByClass(ctx context.Context, classID string) ([]Student, error)
	ListEnrolledByClass(ctx context.Context, classID string) ([]Student, error)
	ListEnrolled(ctx context.Context) ([]Student, error)
	UpsertStudent(ctx context.Context, s *Student) error
	Enroll(ctx context.Context, studentID string, emb face.Embedding) error
	UpdateEmbedding(ctx context.Context, studentID string, emb face.Embedding) error
}

// CourseStore provides access to classes and courses.
type CourseStore interface {
	ListCoursesByInstructor(ctx context.Context, instructorID string) ([]Course, error)
	GetClass(ctx context.Context, id string) (*Class, error)
	GetCourse(ctx context.Context, id string) (*Course, error)
	UpsertClass(ctx context.Context, c *Class) error
	UpsertCourse(ctx context.Context, c *Course) error
	CountEnrolledStudents(ctx context.Context, classID string) (int, error)
}

// AttendanceStore persists attendance rows. Insert must atomically
// enforce the one-row-per-(student, course, day) invariant and report a
// violation as ErrAlreadyRecorded, and a broken reference as
// ErrMissingIdentity.
type AttendanceStore interface {
	Insert(ctx context.Context, rec *AttendanceRecord) error
	ExistsForDay(ctx context.Context, studentID, courseID string, day time.Time) (bool, error)
	ListForCourseDay(ctx context.Context, courseID string, day time.Time) ([]AttendanceRecord, error)
	ListForCourseRange(ctx context.Context, courseID string, from, to time.Time, status AttendanceStatus) ([]AttendanceRecord, error)
}

// SettingsStore persists per-user settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
}
