package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/stream"
	"github.com/facemark/facemark/internal/web/handlers"
	"github.com/facemark/facemark/internal/web/middleware"
)

// Stores bundles the persistence interfaces the server needs.
type Stores struct {
	Users      database.UserStore
	Students   database.StudentStore
	Courses    database.CourseStore
	Attendance database.AttendanceStore
	Settings   database.SettingsStore
}

// Server represents the web server.
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	supervisor     *stream.Supervisor
}

// NewServer creates a new web server.
func NewServer(
	cfg *config.Config,
	stores Stores,
	detector handlers.FaceDetector,
	supervisor *stream.Supervisor,
	index *face.Index,
	sessionRepo middleware.SessionRepository,
) *Server {
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret, sessionRepo)

	s := &Server{
		config:         cfg,
		router:         r,
		sessionManager: sessionManager,
		supervisor:     supervisor,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.CORSOrigins))

	recorder := attendance.NewRecorder(stores.Attendance)
	s.setupRoutes(stores, recorder, detector, index)

	s.httpServer = &http.Server{
		Addr:        cfg.Web.ListenAddr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: MJPEG streams stay open as long as a viewer
		// watches.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and its decoder sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}
	if s.supervisor != nil {
		s.supervisor.StopAll()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
