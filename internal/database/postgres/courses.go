package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// CourseRepository implements database.CourseStore.
type CourseRepository struct {
	pool *Pool
}

// NewCourseRepository creates a course repository.
func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// ListCoursesByInstructor returns the courses taught by one instructor.
func (r *CourseRepository) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]database.Course, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, code, class_id, COALESCE(instructor_id::text, '')
		FROM courses
		WHERE instructor_id = $1
		ORDER BY name
	`, instructorID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []database.Course
	for rows.Next() {
		var c database.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.ClassID, &c.InstructorID); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetClass retrieves one class by id.
func (r *CourseRepository) GetClass(ctx context.Context, id string) (*database.Class, error) {
	var c database.Class
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, semester, section, department
		FROM classes
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Semester, &c.Section, &c.Department)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &c, nil
}

// GetCourse retrieves one course by id.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (*database.Course, error) {
	var c database.Course
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, code, class_id, COALESCE(instructor_id::text, '')
		FROM courses
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Code, &c.ClassID, &c.InstructorID)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &c, nil
}

// UpsertClass inserts or updates a class.
func (r *CourseRepository) UpsertClass(ctx context.Context, c *database.Class) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO classes (id, name, semester, section, department)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			semester = EXCLUDED.semester,
			section = EXCLUDED.section,
			department = EXCLUDED.department
	`, c.ID, c.Name, c.Semester, c.Section, c.Department)
	if err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	return nil
}

// UpsertCourse inserts or updates a course.
func (r *CourseRepository) UpsertCourse(ctx context.Context, c *database.Course) error {
	var instructor any
	if c.InstructorID != "" {
		instructor = c.InstructorID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO courses (id, name, code, class_id, instructor_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			class_id = EXCLUDED.class_id,
			instructor_id = EXCLUDED.instructor_id
	`, c.ID, c.Name, c.Code, c.ClassID, instructor)
	if isPQError(err, codeForeignKeyViolation) {
		return database.ErrMissingIdentity
	}
	if err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	return nil
}

// CountEnrolledStudents counts the enrolled students of one class.
func (r *CourseRepository) CountEnrolledStudents(ctx context.Context, classID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM students WHERE class_id = $1 AND enrolled",
		classID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count enrolled students: %w", err)
	}
	return n, nil
}
