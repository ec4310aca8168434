package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/alertboard/internal/client"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to an alertboard server",
	Long: `Sign in and save the tokens to ~/.alertboard/credentials.yaml
(or $ALERTBOARD_CREDENTIALS). The password is prompted interactively.

Example:
  alertsctl login --server https://alerts.example.com --username ann`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverURL == "" {
			return fmt.Errorf("--server is required")
		}
		if loginUsername == "" {
			return fmt.Errorf("--username is required")
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		c, err := client.New(serverURL, client.WithLogger(cliLogger()))
		if err != nil {
			return err
		}
		resp, err := c.Login(cmd.Context(), loginUsername, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		path, err := credentialsPath()
		if err != nil {
			return err
		}
		if err := saveCredentials(path, &Credentials{
			Server:       serverURL,
			Username:     loginUsername,
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			ExpiresAt:    expiry(resp.ExpiresIn),
		}); err != nil {
			return err
		}
		fmt.Printf("Logged in to %s as %s.\n", serverURL, loginUsername)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved session and forget it",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := credentialsPath()
		if err != nil {
			return err
		}
		creds, err := loadCredentials(path)
		if errors.Is(err, errNotLoggedIn) {
			fmt.Println("Not logged in.")
			return nil
		}
		if err != nil {
			return err
		}

		c, err := client.New(creds.Server, client.WithToken(creds.AccessToken), client.WithLogger(cliLogger()))
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context(), creds.RefreshToken); err != nil {
			// The local session is dropped either way.
			PrintVerbose("Warning: server logout failed: %v", err)
		}
		if err := removeCredentials(path); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(GetOutput()); err != nil {
			return err
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		me, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}
		return render(os.Stdout, GetOutput(), me, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Username:\t%s\n", me.Username)
			fmt.Fprintf(tw, "Email:\t%s\n", me.Email)
			fmt.Fprintf(tw, "Role:\t%s\n", me.Role)
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username (required)")
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	// Fallback for non-terminal input (e.g., piped input)
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(password), nil
}
