package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/pgvector/pgvector-go"
)

// StudentRepository implements database.StudentStore.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = "id, username, roll_no, full_name, email, class_id, embedding, enrolled, created_at"

func scanStudent(row interface{ Scan(...any) error }) (*database.Student, error) {
	var s database.Student
	var raw sql.NullString
	if err := row.Scan(&s.ID, &s.Username, &s.RollNo, &s.FullName, &s.Email, &s.ClassID, &raw, &s.Enrolled, &s.CreatedAt); err != nil {
		return nil, err
	}
	if raw.Valid {
		var vec pgvector.Vector
		if err := vec.Scan(raw.String); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		s.Embedding = face.Embedding(vec.Slice())
	}
	return &s, nil
}

// GetStudent retrieves one student by id.
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id)
	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// ListByClass returns every student of one class, enrolled or not.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE class_id = $1
		ORDER BY roll_no
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()
	return collectStudents(rows)
}

// ListEnrolledByClass returns the enrolled students of one class that
// have an embedding, the matcher's candidate set.
func (r *StudentRepository) ListEnrolledByClass(ctx context.Context, classID string) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE class_id = $1 AND enrolled AND embedding IS NOT NULL
		ORDER BY roll_no
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	defer rows.Close()
	return collectStudents(rows)
}

// ListEnrolled returns every enrolled student with an embedding, used to
// build the school-wide index.
func (r *StudentRepository) ListEnrolled(ctx context.Context) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE enrolled AND embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	defer rows.Close()
	return collectStudents(rows)
}

func collectStudents(rows *sql.Rows) ([]database.Student, error) {
	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	return students, rows.Err()
}

// UpsertStudent inserts or updates a student row. The embedding is only
// written when present, so an import never clears an enrollment.
func (r *StudentRepository) UpsertStudent(ctx context.Context, s *database.Student) error {
	var vec any
	if len(s.Embedding) == face.Dim {
		vec = pgvector.NewVector([]float32(s.Embedding))
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE students SET
			username = $2,
			full_name = $3,
			email = $4,
			class_id = $5,
			embedding = COALESCE($6::vector, embedding),
			enrolled = enrolled OR $7
		WHERE roll_no = $1
	`, s.RollNo, s.Username, s.FullName, s.Email, s.ClassID, vec, s.Enrolled)
	if err == nil {
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO students (id, username, roll_no, full_name, email, class_id, embedding, enrolled, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		`, s.ID, s.Username, s.RollNo, s.FullName, s.Email, s.ClassID, vec, s.Enrolled)
	}
	if isPQError(err, codeUniqueViolation) {
		return database.ErrDuplicate
	}
	if isPQError(err, codeForeignKeyViolation) {
		return database.ErrMissingIdentity
	}
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// Enroll stores a student's first embedding and flips the enrolled
// flag.
func (r *StudentRepository) Enroll(ctx context.Context, studentID string, emb face.Embedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	res, err := r.pool.Exec(ctx,
		"UPDATE students SET embedding = $2, enrolled = TRUE WHERE id = $1",
		studentID, pgvector.NewVector([]float32(emb)))
	if err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// UpdateEmbedding replaces a student's stored embedding. This is the
// descriptor adapter's persistence path and the only post-enrollment
// embedding write.
func (r *StudentRepository) UpdateEmbedding(ctx context.Context, studentID string, emb face.Embedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	res, err := r.pool.Exec(ctx,
		"UPDATE students SET embedding = $2 WHERE id = $1 AND enrolled",
		studentID, pgvector.NewVector([]float32(emb)))
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}
