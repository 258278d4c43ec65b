package mariadb

import (
	"context"
	"fmt"
)

// RosterClass is a class row as the legacy SIS stores it.
type RosterClass struct {
	Code       string
	Name       string
	Semester   string
	Section    string
	Department string
}

// RosterStudent is a student row as the legacy SIS stores it. The SIS
// has no embeddings; students arrive unenrolled and get their face
// captured later through the web UI.
type RosterStudent struct {
	RollNo    string
	FullName  string
	Email     string
	ClassCode string
}

// ListClasses returns every class in the SIS.
func (p *Pool) ListClasses(ctx context.Context) ([]RosterClass, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT code, name, semester, section, department
		FROM classes
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var classes []RosterClass
	for rows.Next() {
		var c RosterClass
		if err := rows.Scan(&c.Code, &c.Name, &c.Semester, &c.Section, &c.Department); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// ListStudents returns the active students of one class.
func (p *Pool) ListStudents(ctx context.Context, classCode string) ([]RosterStudent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.roll_no, s.full_name, COALESCE(s.email, ''), c.code
		FROM students s
		JOIN classes c ON c.id = s.class_id
		WHERE c.code = ? AND s.active = 1
		ORDER BY s.roll_no
	`, classCode)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []RosterStudent
	for rows.Next() {
		var s RosterStudent
		if err := rows.Scan(&s.RollNo, &s.FullName, &s.Email, &s.ClassCode); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// CountStudents returns the number of active students in one class,
// used to size the import progress bar.
func (p *Pool) CountStudents(ctx context.Context, classCode string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM students s
		JOIN classes c ON c.id = s.class_id
		WHERE c.code = ? AND s.active = 1
	`, classCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}
