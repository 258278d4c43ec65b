package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/vision"
	"github.com/facemark/facemark/internal/web/middleware"
)

// testConfig creates a minimal config for testing.
func testConfig() *config.Config {
	return &config.Config{
		Presets: config.PresetsConfig{
			Resolutions: map[string]config.ResolutionPreset{
				"720p":  {Width: 1280, Height: 720, FPS: 10, Quality: 5},
				"1080p": {Width: 1920, Height: 1080, FPS: 10, Quality: 4},
				"480p":  {Width: 854, Height: 480, FPS: 15, Quality: 6},
			},
		},
	}
}

// requestWithSession attaches a session to the request context the way
// RequireAuth would.
func requestWithSession(r *http.Request, userID string, role database.Role) *http.Request {
	session := &middleware.Session{
		ID:        "test-session",
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// fakeDetector returns a canned detection for every frame.
type fakeDetector struct {
	detection *vision.Detection
	err       error
}

func (f *fakeDetector) DetectBest(ctx context.Context, frame []byte) (*vision.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detection, nil
}

// axisEmbedding returns a unit embedding along one axis.
func axisEmbedding(axis int) face.Embedding {
	emb := make(face.Embedding, face.Dim)
	emb[axis] = 1
	return emb
}

// --- in-memory stores ---

type memStudents struct {
	mu       sync.Mutex
	students map[string]database.Student
}

func newMemStudents(students ...database.Student) *memStudents {
	m := &memStudents{students: make(map[string]database.Student)}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

func (m *memStudents) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

func (m *memStudents) ListByClass(ctx context.Context, classID string) ([]database.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStudents) ListEnrolledByClass(ctx context.Context, classID string) ([]database.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Student
	for _, s := range m.students {
		if s.ClassID == classID && s.Enrolled && len(s.Embedding) == face.Dim {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStudents) ListEnrolled(ctx context.Context) ([]database.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Student
	for _, s := range m.students {
		if s.Enrolled && len(s.Embedding) == face.Dim {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStudents) UpsertStudent(ctx context.Context, s *database.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = *s
	return nil
}

func (m *memStudents) Enroll(ctx context.Context, studentID string, emb face.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return database.ErrNotFound
	}
	s.Embedding = emb
	s.Enrolled = true
	m.students[studentID] = s
	return nil
}

func (m *memStudents) UpdateEmbedding(ctx context.Context, studentID string, emb face.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok || !s.Enrolled {
		return database.ErrNotFound
	}
	s.Embedding = emb
	m.students[studentID] = s
	return nil
}

type memCourses struct {
	classes map[string]database.Class
	courses map[string]database.Course
}

func newMemCourses(classes []database.Class, courses []database.Course) *memCourses {
	m := &memCourses{
		classes: make(map[string]database.Class),
		courses: make(map[string]database.Course),
	}
	for _, c := range classes {
		m.classes[c.ID] = c
	}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return m
}

func (m *memCourses) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]database.Course, error) {
	var out []database.Course
	for _, c := range m.courses {
		if c.InstructorID == instructorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCourses) GetClass(ctx context.Context, id string) (*database.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &c, nil
}

func (m *memCourses) GetCourse(ctx context.Context, id string) (*database.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &c, nil
}

func (m *memCourses) UpsertClass(ctx context.Context, c *database.Class) error {
	m.classes[c.ID] = *c
	return nil
}

func (m *memCourses) UpsertCourse(ctx context.Context, c *database.Course) error {
	m.courses[c.ID] = *c
	return nil
}

func (m *memCourses) CountEnrolledStudents(ctx context.Context, classID string) (int, error) {
	return 0, nil
}

// memAttendance mimics the unique (student, course, day) constraint.
type memAttendance struct {
	mu      sync.Mutex
	records map[string]database.AttendanceRecord
}

func newMemAttendance() *memAttendance {
	return &memAttendance{records: make(map[string]database.AttendanceRecord)}
}

func attendanceKey(studentID, courseID string, day time.Time) string {
	return studentID + "|" + courseID + "|" + day.Format("2006-01-02")
}

func (m *memAttendance) Insert(ctx context.Context, rec *database.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey(rec.StudentID, rec.CourseID, rec.SessionDate)
	if _, exists := m.records[key]; exists {
		return database.ErrAlreadyRecorded
	}
	m.records[key] = *rec
	return nil
}

func (m *memAttendance) ExistsForDay(ctx context.Context, studentID, courseID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[attendanceKey(studentID, courseID, day)]
	return ok, nil
}

func (m *memAttendance) ListForCourseDay(ctx context.Context, courseID string, day time.Time) ([]database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.AttendanceRecord
	for _, rec := range m.records {
		if rec.CourseID == courseID && rec.SessionDate.Equal(day) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memAttendance) ListForCourseRange(ctx context.Context, courseID string, from, to time.Time, status database.AttendanceStatus) ([]database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.AttendanceRecord
	for _, rec := range m.records {
		if rec.CourseID != courseID || rec.SessionDate.Before(from) || rec.SessionDate.After(to) {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]database.Settings
}

func newMemSettings() *memSettings {
	return &memSettings{rows: make(map[string]database.Settings)}
}

func (m *memSettings) GetSettings(ctx context.Context, userID string) (*database.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[userID]; ok {
		return &s, nil
	}
	def := database.DefaultSettings(userID)
	return &def, nil
}

func (m *memSettings) SaveSettings(ctx context.Context, s *database.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.UserID] = *s
	return nil
}

type memUsers struct {
	users map[string]database.User // by username
}

func newMemUsers(users ...database.User) *memUsers {
	m := &memUsers{users: make(map[string]database.User)}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) CreateUser(ctx context.Context, u *database.User) error {
	if _, exists := m.users[u.Username]; exists {
		return database.ErrDuplicate
	}
	m.users[u.Username] = *u
	return nil
}
