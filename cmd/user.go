package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
)

var userCreateCmd = &cobra.Command{
	Use:   "user-create",
	Short: "Create a staff login",
	Long: `Create a teacher or admin account that can log into the web UI.
The password is read from the terminal, or from the FACEMARK_PASSWORD
environment variable for scripted setups.

Examples:
  facemark user-create --username jnovak --name "Jan Novák"
  facemark user-create --username admin --name "Site Admin" --role admin`,
	RunE: runUserCreate,
}

func init() {
	rootCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("username", "", "Login name (required)")
	userCreateCmd.Flags().String("name", "", "Full name (required)")
	userCreateCmd.Flags().String("role", string(database.RoleTeacher), "Role: teacher or admin")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("name")
}

func readPassword() (string, error) {
	if p := os.Getenv("FACEMARK_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := mustGetString(cmd, "username")
	fullName := mustGetString(cmd, "name")
	role := database.Role(mustGetString(cmd, "role"))

	if role != database.RoleTeacher && role != database.RoleAdmin {
		return fmt.Errorf("invalid role %q, must be teacher or admin", role)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	ctx := context.Background()
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
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

	users := postgres.NewUserRepository(pool)
	err = users.CreateUser(ctx, &database.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         role,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Printf("Created %s user %q\n", role, username)
	return nil
}
