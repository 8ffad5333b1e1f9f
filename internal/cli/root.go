// Package cli implements the promptrunner CLI commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/mylxsw/asteria/level"
	"github.com/mylxsw/asteria/log"
	"github.com/spf13/cobra"

	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/models"
	"github.com/supremeagent/promptrunner/pkg/api"
)

var (
	flagBackend string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "promptrunner",
	Short: "Run commands against the prompt backend",
	Long: `promptrunner sends a free-text command to the prompt backend and shows
the progress the backend streams for it, followed by the final result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.DefaultLogLevel(level.Debug)
		} else {
			log.DefaultLogLevel(level.Error)
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), styleError.Render("Error:"), err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Backend base URL (overrides settings)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an API client from settings, the --backend flag and saved credentials.
func newClient(settings *models.Settings) (*api.Client, error) {
	opts := api.ClientOptions{
		BaseURL:      settings.Backend.URL,
		SchedulerURL: settings.Backend.SchedulerURL,
		AuthURL:      settings.Backend.AuthURL,
	}
	if flagBackend != "" {
		opts.BaseURL = strings.TrimSpace(flagBackend)
		opts.SchedulerURL = ""
		opts.AuthURL = ""
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if creds != nil {
		opts.Token = creds.Access
	}
	return api.NewClient(opts)
}
