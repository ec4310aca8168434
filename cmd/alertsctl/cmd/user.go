package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/users"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

// defaultDBPath is the default database path, can be overridden via ALERTBOARD_DB_PATH env var
var defaultDBPath = "./data/alertboard.db"

func init() {
	if envPath := os.Getenv("ALERTBOARD_DB_PATH"); envPath != "" {
		defaultDBPath = envPath
	}
}

var (
	userDBPath   string
	userUsername string
	userEmail    string
	userRole     string
)

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
	Long: `Commands for managing alertboard users.

These commands operate directly on the database file and are intended
for system administrators to manage users outside of the web interface.

Examples:
  # List all users
  alertsctl user list

  # Create an operator who may post alerts
  alertsctl user create --username ann --email ann@example.com --role operator

  # Change a user's password
  alertsctl user passwd --username admin`,
}

// userListCmd lists all users
var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long: `List all users in the database.

Displays username, email, role, and creation date for each user.
Passwords are never displayed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(GetOutput()); err != nil {
			return err
		}
		store, err := openDatabase(userDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		userList, err := store.Users().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		out := make([]users.UserResponse, 0, len(userList))
		for _, u := range userList {
			out = append(out, users.UserResponse{
				ID:        u.ID,
				Username:  u.Username,
				Email:     u.Email,
				Role:      string(u.Role),
				CreatedAt: u.CreatedAt.Format(time.RFC3339),
				UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
			})
		}

		return render(os.Stdout, GetOutput(), out, func(tw *tabwriter.Writer) {
			if len(userList) == 0 {
				fmt.Fprintln(tw, "No users found.")
				return
			}
			fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tCREATED")
			for _, u := range userList {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					u.ID,
					u.Username,
					u.Email,
					u.Role,
					u.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			fmt.Fprintf(tw, "\nTotal: %d user(s)\n", len(userList))
		})
	},
}

// userCreateCmd creates a new user
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long: `Create a new user in the database.

The password will be prompted interactively for security reasons
(to avoid exposing it in shell history).

Password requirements:
  - Minimum 12 characters
  - At least 1 uppercase letter (A-Z)
  - At least 1 lowercase letter (a-z)
  - At least 1 digit (0-9)
  - At least 1 special character (!@#$%^&*...)

Available roles:
  - admin: Post alerts, remove alerts and manage users
  - operator: Post alerts
  - viewer: Read-only access to the feed

Example:
  alertsctl user create --username john --email john@example.com --role operator`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := validateCreateFlags()
		if err != nil {
			return err
		}

		password, err := promptNewPassword("Enter password: ", "Confirm password: ")
		if err != nil {
			return err
		}

		store, err := openDatabase(userDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := createUser(cmd.Context(), store, userUsername, userEmail, role, password)
		if err != nil {
			return err
		}

		fmt.Printf("\nUser created successfully:\n")
		fmt.Printf("  ID:       %s\n", user.ID)
		fmt.Printf("  Username: %s\n", user.Username)
		fmt.Printf("  Email:    %s\n", user.Email)
		fmt.Printf("  Role:     %s\n", user.Role)
		return nil
	},
}

// userPasswdCmd changes a user's password
var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change a user's password",
	Long: `Change the password for an existing user.

The new password will be prompted interactively. All refresh tokens of the
user are revoked, so API clients must sign in again.

Example:
  alertsctl user passwd --username admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userUsername == "" {
			return fmt.Errorf("--username is required")
		}

		store, err := openDatabase(userDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		password, err := promptNewPassword("Enter new password: ", "Confirm new password: ")
		if err != nil {
			return err
		}

		user, err := setPassword(cmd.Context(), store, userUsername, password)
		if err != nil {
			return err
		}

		fmt.Printf("\nPassword changed successfully for user '%s'.\n", user.Username)
		fmt.Println("All existing sessions have been revoked.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userPasswdCmd)

	// Common flags (db has default value)
	for _, cmd := range []*cobra.Command{userListCmd, userCreateCmd, userPasswdCmd} {
		cmd.Flags().StringVar(&userDBPath, "db", defaultDBPath, "path to SQLite database file")
	}

	// Create-specific flags
	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "username for the new user (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email for the new user (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", "viewer", "role: admin, operator, or viewer")
	userCreateCmd.MarkFlagRequired("username")
	userCreateCmd.MarkFlagRequired("email")

	// Passwd-specific flags
	userPasswdCmd.Flags().StringVar(&userUsername, "username", "", "username of the user to update (required)")
	userPasswdCmd.MarkFlagRequired("username")
}

func validateCreateFlags() (models.Role, error) {
	if userUsername == "" {
		return "", fmt.Errorf("--username is required")
	}
	if userEmail == "" {
		return "", fmt.Errorf("--email is required")
	}
	if err := users.ValidateUsername(userUsername); err != nil {
		return "", fmt.Errorf("invalid username: %w", err)
	}
	if err := users.ValidateEmail(userEmail); err != nil {
		return "", fmt.Errorf("invalid email: %w", err)
	}
	role, err := users.ValidateRole(userRole)
	if err != nil {
		return "", fmt.Errorf("invalid role: %w", err)
	}
	return role, nil
}

// createUser stores a new account after checking that the username and
// email are free.
func createUser(ctx context.Context, store storage.Storage, username, email string, role models.Role, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	existing, err := store.Users().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("username '%s' already exists", username)
	}
	existing, err = store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("email '%s' already exists", email)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.NewUser(username, email, role)
	user.ID = uuid.New().String()
	user.PasswordHash = hash
	if err := store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// setPassword replaces the password of username and revokes its refresh
// tokens.
func setPassword(ctx context.Context, store storage.Storage, username, password string) (*models.User, error) {
	user, err := store.Users().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user '%s' not found", username)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	if err := store.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	// Revoke all refresh tokens for this user (force re-login)
	if err := store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		// Log warning but don't fail - password was already changed
		PrintVerbose("Warning: could not revoke existing sessions: %v", err)
	}
	return user, nil
}

// promptNewPassword reads a password twice and checks its strength.
func promptNewPassword(prompt, confirm string) (string, error) {
	password, err := promptPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("invalid password: %w", err)
	}
	again, err := promptPassword(confirm)
	if err != nil {
		return "", fmt.Errorf("read password confirmation: %w", err)
	}
	if password != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// openDatabase opens the SQLite database.
func openDatabase(path string) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", path)
	}

	store := storage.NewSQLiteStorage(path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}
