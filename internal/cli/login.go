package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/models"
	"github.com/supremeagent/promptrunner/pkg/api"
)

var (
	flagLoginEmail  string
	flagLoginSignup bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the access token",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemoveCredentials(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render("Logged out."))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login status and backend",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	loginCmd.Flags().StringVar(&flagLoginEmail, "email", "", "Account email")
	loginCmd.Flags().BoolVar(&flagLoginSignup, "signup", false, "Create the account first")
}

func runLogin(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	client, err := newClient(settings)
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	email := strings.TrimSpace(flagLoginEmail)
	if email == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Email: ")
		if email, err = readLine(in); err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	password, err := readPassword(in)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}

	req := api.LoginRequest{Email: email, Password: password}
	var pair api.TokenPair
	if flagLoginSignup {
		pair, err = client.Signup(cmd.Context(), req)
	} else {
		pair, err = client.Login(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := config.SaveCredentials(&models.Credentials{Email: email, Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleSuccess.Render("Logged in as"), email)
	return nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(in)
}

func runStatus(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	backend := settings.Backend.URL
	if flagBackend != "" {
		backend = flagBackend
	}
	fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Backend:"), styleValue.Render(backend))

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}
	if creds == nil || creds.Access == "" {
		fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Login:"), styleWarning.Render("not logged in"))
		fmt.Fprintln(out, styleHint.Render("Run 'promptrunner login' to log in."))
		return nil
	}

	fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Login:"), styleValue.Render(creds.Email))
	expires, err := tokenExpiry(creds.Access)
	switch {
	case err != nil:
		fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Token:"), styleWarning.Render("unreadable"))
	case expires.IsZero():
		fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Token:"), "no expiry")
	case time.Now().After(expires):
		fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Token:"), styleError.Render("expired "+expires.Format(time.RFC3339)))
	default:
		fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Token:"), styleSuccess.Render("valid until "+expires.Format(time.RFC3339)))
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend remains the authority on validity.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
