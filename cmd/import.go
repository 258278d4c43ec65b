package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mariadb"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/roster"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import classes and students from the legacy SIS",
	Long: `Import the class and student roster from the legacy MariaDB student
information system into Facemark's PostgreSQL database.

The import is idempotent: re-running it updates names, emails and class
membership but never touches a stored face embedding or clears an
enrollment. Students arrive unenrolled and get their face captured later
through the web UI.

Examples:
  # Import every class
  facemark import

  # Import a single class
  facemark import --class CS-3A

  # Show what would be imported without writing anything
  facemark import --dry-run`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("class", "", "Import only this class code (default: all classes)")
	importCmd.Flags().Bool("dry-run", false, "List what would be imported without writing")
}

// classNamespace makes class UUIDs a pure function of the SIS class
// code, so re-imports update rows instead of duplicating them.
var classNamespace = uuid.MustParse("8f1c1f0a-5b42-4c29-9d68-3aa1f2c4e7b1")

func classID(code string) string {
	return uuid.NewSHA1(classNamespace, []byte(code)).String()
}

func runImport(cmd *cobra.Command, args []string) error {
	onlyClass := mustGetString(cmd, "class")
	dryRun := mustGetBool(cmd, "dry-run")

	ctx := context.Background()
	cfg := config.Load()

	if cfg.SIS.DatabaseURL == "" {
		return fmt.Errorf("SIS_DATABASE_URL environment variable is required")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to the SIS (MariaDB)...")
	sis, err := mariadb.NewPool(cfg.SIS.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the SIS: %w", err)
	}
	defer sis.Close()

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

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	courses := postgres.NewCourseRepository(pool)
	students := postgres.NewStudentRepository(pool)

	classes, err := sis.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("listing SIS classes: %w", err)
	}
	if onlyClass != "" {
		var filtered []mariadb.RosterClass
		for _, c := range classes {
			if c.Code == onlyClass {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("class %q not found in the SIS", onlyClass)
		}
		classes = filtered
	}

	fmt.Printf("Found %d classes\n", len(classes))

	var totalStudents int
	for _, c := range classes {
		n, err := sis.CountStudents(ctx, c.Code)
		if err != nil {
			return fmt.Errorf("counting students of %s: %w", c.Code, err)
		}
		totalStudents += n
	}

	if dryRun {
		for _, c := range classes {
			n, _ := sis.CountStudents(ctx, c.Code)
			fmt.Printf("  %s (%s): %d students\n", c.Code, c.Name, n)
		}
		fmt.Printf("Dry run: would import %d classes and %d students\n",
			len(classes), totalStudents)
		return nil
	}

	bar := progressbar.NewOptions(totalStudents,
		progressbar.OptionSetDescription("Importing roster"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var imported, failed int
	for _, c := range classes {
		cid := classID(c.Code)
		if err := courses.UpsertClass(ctx, &database.Class{
			ID:         cid,
			Name:       c.Name,
			Semester:   c.Semester,
			Section:    c.Section,
			Department: c.Department,
		}); err != nil {
			return fmt.Errorf("importing class %s: %w", c.Code, err)
		}

		rows, err := sis.ListStudents(ctx, c.Code)
		if err != nil {
			return fmt.Errorf("listing students of %s: %w", c.Code, err)
		}

		for _, r := range rows {
			err := students.UpsertStudent(ctx, &database.Student{
				ID:       uuid.New().String(),
				Username: roster.Username(r.FullName, r.RollNo),
				RollNo:   r.RollNo,
				FullName: r.FullName,
				Email:    r.Email,
				ClassID:  cid,
			})
			if err != nil {
				failed++
				fmt.Printf("\n  %s (%s): %v\n", r.RollNo, r.FullName, err)
			} else {
				imported++
			}
			_ = bar.Add(1)
		}
	}

	fmt.Printf("\nImported %d classes, %d students", len(classes), imported)
	if failed > 0 {
		fmt.Printf(" (%d failed)", failed)
	}
	fmt.Println()
	return nil
}
