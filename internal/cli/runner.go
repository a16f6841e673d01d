package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/g960059/showrunner/internal/appclient"
	"github.com/g960059/showrunner/internal/config"
)

// Runner executes one showrunner command line against the daemon socket.
// Exit codes: 0 success, 1 the daemon call failed, 2 usage error.
type Runner struct {
	client *appclient.Client
	out    io.Writer
	errOut io.Writer
	styles styles
	json   bool

	watchOpts appclient.WatchOptions
}

func NewRunner(out, errOut io.Writer) *Runner {
	return NewRunnerWithClient(nil, out, errOut)
}

// NewRunnerWithClient pins the daemon client; the --socket flag is ignored.
func NewRunnerWithClient(client *appclient.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{
		client: client,
		out:    out,
		errOut: errOut,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

// failure marks an error raised after the command line was accepted.
type failure struct {
	err error
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(err error) error {
	if err == nil {
		return nil
	}
	return &failure{err: err}
}

var errUsage = errors.New("missing command")

func (r *Runner) Run(ctx context.Context, args []string) int {
	root := r.rootCmd()
	root.SetArgs(args)
	root.SetOut(r.out)
	root.SetErr(r.errOut)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	var f *failure
	if errors.As(err, &f) {
		return 1
	}
	return 2
}

func (r *Runner) rootCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:           "showrunner",
		Short:         "Control a running showrunnerd",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Load a show file and follow what happens
  showrunner load ./show.yaml
  showrunner watch

  # Fire an event now, or queue it
  showrunner trigger 10
  showrunner queue 11 --delay 2s
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errUsage
		},
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", envOr("SHOWRUNNER_SOCKET", config.DefaultConfig().SocketPath), "Daemon socket path (env: SHOWRUNNER_SOCKET)")
	cmd.PersistentFlags().BoolVar(&r.json, "json", false, "Print raw JSON responses")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if r.client == nil {
			r.client = appclient.New(socketPath)
		}
		return nil
	}

	cmd.AddCommand(newHealthCmd(r))
	cmd.AddCommand(newTriggerCmd(r))
	cmd.AddCommand(newQueueCmd(r))
	cmd.AddCommand(newRescheduleCmd(r))
	cmd.AddCommand(newShiftCmd(r))
	cmd.AddCommand(newSimpleCmd(r, "clear-queue", "Drop every queued event", "clear_queue"))
	cmd.AddCommand(newSimpleCmd(r, "all-stop", "Clear the queue here and on every networked node", "all_stop"))
	cmd.AddCommand(newSimpleCmd(r, "redraw", "Ask the daemon to resend the current window", "redraw"))
	cmd.AddCommand(newSimpleCmd(r, "unload", "Unload the current configuration", "unload"))
	cmd.AddCommand(newSceneCmd(r))
	cmd.AddCommand(newStatusCmd(r))
	cmd.AddCommand(newToggleCmd(r, "debug", "Turn debug mode on or off", "debug"))
	cmd.AddCommand(newToggleCmd(r, "edit-mode", "Turn edit mode on or off", "edit_mode"))
	cmd.AddCommand(newInputCmd(r))
	cmd.AddCommand(newRequestCmd(r))
	cmd.AddCommand(newEditCmd(r))
	cmd.AddCommand(newLoadCmd(r))
	cmd.AddCommand(newSaveCmd(r))
	cmd.AddCommand(newNotificationsCmd(r))
	cmd.AddCommand(newConfigsCmd(r))
	cmd.AddCommand(newWatchCmd(r))
	return cmd
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseID(name, raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, raw)
	}
	return uint32(v), nil
}

func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", raw)
}
