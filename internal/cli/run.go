package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/tui"
	"github.com/supremeagent/promptrunner/pkg/api"
	"github.com/supremeagent/promptrunner/pkg/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	flagRunTimeout time.Duration
	flagRunTUI     bool
	flagRunJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Run a command and stream its progress",
	Long: `Run sends the command to the prompt backend under a fresh session, printing
every progress entry the backend streams for that session, then the result.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&flagRunTimeout, "timeout", 0, "Abort the run after this long (0 = settings default)")
	runCmd.Flags().BoolVar(&flagRunTUI, "tui", false, "Show the run in a live terminal view")
	runCmd.Flags().BoolVar(&flagRunJSON, "json", false, "Print the run as JSON")
}

// runOptions controls one CLI run.
type runOptions struct {
	Timeout     time.Duration
	StreamGrace time.Duration
	JSON        bool
}

// runOutput is the JSON form of a run.
type runOutput struct {
	SessionID     string            `json:"session_id"`
	Command       string            `json:"command"`
	Logs          []runner.LogEntry `json:"logs"`
	Response      string            `json:"response"`
	Stream        runner.State      `json:"stream"`
	Dispatch      runner.State      `json:"dispatch"`
	StreamError   string            `json:"stream_error,omitempty"`
	DispatchError string            `json:"dispatch_error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	opts := runOptions{JSON: flagRunJSON}
	if opts.Timeout, err = config.ParseDuration(settings.Run.Timeout); err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = flagRunTimeout
	}
	if opts.StreamGrace, err = config.ParseDuration(settings.Run.StreamGrace); err != nil {
		return err
	}

	client, err := newClient(settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagRunTUI {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("--tui needs a terminal")
		}
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		res, err := tui.Run(ctx, runner.Options{Streams: client, Dispatcher: client, StreamGrace: opts.StreamGrace}, command)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Response)
		return nil
	}

	_, err = executeRun(ctx, cmd.OutOrStdout(), client, command, opts)
	return err
}

// executeRun runs command against client, writing progress and the result to out.
func executeRun(ctx context.Context, out io.Writer, client *api.Client, command string, opts runOptions) (runner.Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	p := &printer{out: out, quiet: opts.JSON}
	r := runner.New(runner.Options{
		Streams:     client,
		Dispatcher:  client,
		Hooks:       p.hooks(),
		StreamGrace: opts.StreamGrace,
	})

	res, err := r.Run(ctx, command)
	if opts.JSON {
		if errors.Is(err, runner.ErrCommandRequired) {
			return res, err
		}
		if encErr := writeRunJSON(out, command, res); encErr != nil {
			return res, encErr
		}
		return res, err
	}

	if err == nil && res.StreamErr != nil {
		p.printf("%s %v\n", styleWarning.Render("Warning:"), res.StreamErr)
	}
	return res, err
}

func writeRunJSON(out io.Writer, command string, res runner.Result) error {
	doc := runOutput{
		SessionID: res.SessionID,
		Command:   command,
		Logs:      res.Logs,
		Response:  res.Response,
		Stream:    res.Stream,
		Dispatch:  res.Dispatch,
	}
	if doc.Logs == nil {
		doc.Logs = []runner.LogEntry{}
	}
	if res.StreamErr != nil {
		doc.StreamError = res.StreamErr.Error()
	}
	if res.DispatchErr != nil {
		doc.DispatchError = res.DispatchErr.Error()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// printer writes runner progress as it arrives. Hooks fire from two
// goroutines, so writes are serialized.
type printer struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) hooks() runner.Hooks {
	if p.quiet {
		return runner.Hooks{}
	}
	return runner.Hooks{
		OnRunStart: func(sessionID, command string) {
			p.printf("%s %s\n", styleLabel.Render("Session:"), styleValue.Render(sessionID))
		},
		OnLog: func(sessionID string, entry runner.LogEntry) {
			if entry.Kind == runner.EntryAction {
				p.printf("  %s\n", styleAction.Render(entry.Text))
				return
			}
			p.printf("  %s %s\n", styleHint.Render("•"), entry.Text)
		},
		OnResult: func(sessionID, response string) {
			p.printf("%s %s\n", styleSuccess.Render("Result:"), response)
		},
	}
}
