package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/web/handlers"
	"github.com/facemark/facemark/internal/web/middleware"
)

func (s *Server) setupRoutes(stores Stores, recorder *attendance.Recorder, detector handlers.FaceDetector, index *face.Index) {
	authHandler := handlers.NewAuthHandler(stores.Users, s.sessionManager)
	terminalHandler := handlers.NewTerminalHandler(
		stores.Students, stores.Courses, stores.Attendance, stores.Settings,
		recorder, detector, index)
	studentsHandler := handlers.NewStudentsHandler(stores.Students, stores.Courses, detector, index)
	cameraHandler := handlers.NewCameraHandler(s.config, stores.Settings, s.supervisor)
	settingsHandler := handlers.NewSettingsHandler(s.config, stores.Settings)
	reportsHandler := handlers.NewReportsHandler(stores.Students, stores.Courses, stores.Attendance)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Terminal
			r.Get("/terminal/teacher-data", terminalHandler.TeacherData)
			r.Post("/terminal/courses/{courseID}/identify", terminalHandler.Identify)
			r.Get("/terminal/courses/{courseID}/today", terminalHandler.TodayAttendance)
			r.Post("/terminal/courses/{courseID}/mark", terminalHandler.MarkManual)

			// Students
			r.Get("/classes/{classID}/students", studentsHandler.ClassStudents)
			r.Post("/students/{studentID}/enroll", studentsHandler.Enroll)

			// Camera
			r.Get("/camera/stream", cameraHandler.Stream)
			r.Get("/camera/snapshot", cameraHandler.Snapshot)
			r.Post("/camera/test", cameraHandler.Test)
			r.Post("/camera/stop", cameraHandler.Stop)

			// Settings
			r.Get("/settings", settingsHandler.Get)
			r.Put("/settings", settingsHandler.Save)

			// Reports
			r.Get("/reports/courses/{courseID}", reportsHandler.Range)
			r.Get("/reports/courses/{courseID}/summary", reportsHandler.Summary)
		})
	})
}
