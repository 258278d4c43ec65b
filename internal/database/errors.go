package database

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRecorded is returned when an attendance row already
	// exists for the (student, course, session date) key. It is a
	// defined outcome, not a failure: callers surface it as "duplicate".
	ErrAlreadyRecorded = errors.New("attendance already recorded")

	// ErrMissingIdentity is returned when a referenced student, course
	// or class does not resolve.
	ErrMissingIdentity = errors.New("unknown student, course or class")

	// ErrDuplicate is returned when inserting a row that violates a
	// natural-key constraint (username, roll number).
	ErrDuplicate = errors.New("duplicate row")
)
