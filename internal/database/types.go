package database

import (
	"time"

	"github.com/facemark/facemark/internal/face"
)

// Role of an authenticated user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// User is a staff account that can sign in to the web UI.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	FullName     string
	Role         Role
	CreatedAt    time.Time
}

// Class is a teaching group (e.g. "CS 3rd semester, section B").
type Class struct {
	ID         string
	Name       string
	Semester   string
	Section    string
	Department string
}

// Course is a taught subject bound to a class and an instructor.
type Course struct {
	ID           string
	Name         string
	Code         string
	ClassID      string
	InstructorID string
}

// Student belongs to one class and, once enrolled, carries a single
// adapted face embedding. The embedding is written at enrollment and
// afterwards only replaced through descriptor adaptation.
type Student struct {
	ID        string
	Username  string
	RollNo    string
	FullName  string
	Email     string
	ClassID   string
	Embedding face.Embedding
	Enrolled  bool
	CreatedAt time.Time
}

// AttendanceStatus of a student for one course session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	// StatusAbsent is derived by reporting for students with no record;
	// it is never written by the attendance recorder.
	StatusAbsent AttendanceStatus = "absent"
)

// MarkedBy records which path created an attendance row.
type MarkedBy string

const (
	MarkedByRecognition MarkedBy = "facial_recognition"
	MarkedByManual      MarkedBy = "manual"
	MarkedBySystem      MarkedBy = "system"
)

// AttendanceRecord is one student/course/day outcome. At most one row
// exists per (StudentID, CourseID, SessionDate); the database enforces
// this with a unique index.
type AttendanceRecord struct {
	ID              string
	StudentID       string
	CourseID        string
	ClassID         string
	SessionDate     time.Time // local midnight of the marking day
	Timestamp       time.Time // exact marking instant
	Status          AttendanceStatus
	ConfidenceScore float64
	MarkedBy        MarkedBy
}

// Settings is a per-user configuration row. Every user owns one; the
// recorder and camera endpoints receive these values explicitly, never
// through ambient state.
type Settings struct {
	UserID            string
	CameraType        string // webcam, usb or ip
	IPCameraURL       string
	Resolution        string // 1080p, 720p or 480p
	WorkStartTime     string // HH:MM
	LateCutoffTime    string // HH:MM
	WorkEndTime       string // HH:MM
	MatchingThreshold float64
	UpdatedAt         time.Time
}

// DefaultSettings returns the settings assigned to a user who has never
// saved any.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:            userID,
		CameraType:        "webcam",
		Resolution:        "720p",
		WorkStartTime:     "09:00",
		LateCutoffTime:    "09:15",
		WorkEndTime:       "17:00",
		MatchingThreshold: 0.75,
	}
}
