package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/face"
	"github.com/facemark/facemark/internal/stream"
	"github.com/facemark/facemark/internal/vision"
	"github.com/facemark/facemark/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Facemark web server.
The server hosts the attendance terminal, the live camera stream,
enrollment, settings and reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// sessionRepoAdapter bridges the postgres session repository into the
// session manager's persistence interface.
type sessionRepoAdapter struct {
	repo *postgres.SessionRepository
}

func (a *sessionRepoAdapter) Create(ctx context.Context, id, userID string, role database.Role, createdAt, expiresAt time.Time) error {
	return a.repo.Create(ctx, &postgres.Session{
		ID:        id,
		UserID:    userID,
		Role:      role,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	})
}

func (a *sessionRepoAdapter) Get(ctx context.Context, id string, now time.Time) (string, database.Role, time.Time, time.Time, error) {
	s, err := a.repo.Get(ctx, id, now)
	if err != nil {
		return "", "", time.Time{}, time.Time{}, err
	}
	return s.UserID, s.Role, s.CreatedAt, s.ExpiresAt, nil
}

func (a *sessionRepoAdapter) Delete(ctx context.Context, id string) error {
	return a.repo.Delete(ctx, id)
}

func (a *sessionRepoAdapter) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return a.repo.DeleteExpired(ctx, now)
}

// buildFaceIndex loads every enrolled embedding into the in-memory
// duplicate-enrollment index.
func buildFaceIndex(ctx context.Context, students database.StudentStore) *face.Index {
	index := face.NewIndex()
	enrolled, err := students.ListEnrolled(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load enrolled students: %v\n", err)
		fmt.Println("Duplicate-enrollment detection starts empty")
		return index
	}
	entries := make([]face.Enrolled, 0, len(enrolled))
	for _, s := range enrolled {
		entries = append(entries, face.Enrolled{StudentID: s.ID, Embedding: s.Embedding})
	}
	index.Build(entries)
	fmt.Printf("Face index built with %d enrolled students\n", index.Count())
	return index
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.NewPool(postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	stores := web.Stores{
		Users:      postgres.NewUserRepository(pool),
		Students:   postgres.NewStudentRepository(pool),
		Courses:    postgres.NewCourseRepository(pool),
		Attendance: postgres.NewAttendanceRepository(pool),
		Settings:   postgres.NewSettingsRepository(pool),
	}
	sessionRepo := &sessionRepoAdapter{repo: postgres.NewSessionRepository(pool)}
	fmt.Println("Session persistence enabled (PostgreSQL)")

	index := buildFaceIndex(ctx, stores.Students)

	detector, err := vision.NewClient(cfg.Vision.URL)
	if err != nil {
		return fmt.Errorf("configuring detection service client: %w", err)
	}
	if !detector.Healthy(ctx) {
		fmt.Println("Warning: face detection service is not answering, identification will fail until it comes up")
	}

	supervisor := stream.NewSupervisor(cfg.Stream.FFmpegBinary,
		time.Duration(cfg.Stream.ViewerGrace)*time.Second)

	server := web.NewServer(cfg, stores, detector, supervisor, index, sessionRepo)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facemark on http://%s\n", cfg.Web.ListenAddr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
