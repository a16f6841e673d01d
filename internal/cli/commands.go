package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/g960059/showrunner/internal/api"
	"github.com/g960059/showrunner/internal/configfile"
)

func newHealthCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and the loaded configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := r.client.Health(cmd.Context())
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(resp)
			}
			r.printHealth(resp)
			return nil
		},
	}
}

// send posts one command envelope and reports the acknowledgement.
func (r *Runner) send(cmd *cobra.Command, req api.CommandRequest) error {
	resp, err := r.client.Command(cmd.Context(), req)
	if err != nil {
		return fail(err)
	}
	if r.json {
		return r.writeJSON(resp)
	}
	r.printAccepted(resp)
	return nil
}

func newTriggerCmd(r *Runner) *cobra.Command {
	var noSceneCheck, noBroadcast bool

	cmd := &cobra.Command{
		Use:   "trigger <event>",
		Short: "Fire an event immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			checkScene, broadcast := !noSceneCheck, !noBroadcast
			return r.send(cmd, api.CommandRequest{
				Type:       api.CommandTrigger,
				Event:      event,
				CheckScene: &checkScene,
				Broadcast:  &broadcast,
			})
		},
	}
	cmd.Flags().BoolVar(&noSceneCheck, "no-scene-check", false, "Fire even if the event is not in the current scene")
	cmd.Flags().BoolVar(&noBroadcast, "no-broadcast", false, "Do not announce the event to other nodes")
	return cmd
}

func newQueueCmd(r *Runner) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "queue <event>",
		Short: "Schedule an event after a delay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			if delay < 0 {
				return fmt.Errorf("--delay must not be negative")
			}
			return r.send(cmd, api.CommandRequest{Type: api.CommandQueue, Event: event, Delay: delay.String()})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay before the event fires")
	return cmd
}

func newRescheduleCmd(r *Runner) *cobra.Command {
	var start string
	var delay time.Duration
	var cancel bool

	cmd := &cobra.Command{
		Use:   "reschedule <event> --start <time> (--delay <d> | --cancel)",
		Short: "Change or cancel one queued occurrence of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			startTime, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(start))
			if err != nil {
				return fmt.Errorf("--start must be an RFC 3339 time: %w", err)
			}
			if cancel == cmd.Flags().Changed("delay") {
				return fmt.Errorf("exactly one of --delay or --cancel is required")
			}
			req := api.CommandRequest{Type: api.CommandReschedule, Event: event, StartTime: &startTime}
			if !cancel {
				if delay < 0 {
					return fmt.Errorf("--delay must not be negative")
				}
				req.Delay = delay.String()
			}
			return r.send(cmd, req)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start time of the queued occurrence, as shown by watch")
	cmd.Flags().DurationVar(&delay, "delay", 0, "New delay measured from the start time")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "Remove the occurrence instead")
	return cmd
}

func newShiftCmd(r *Runner) *cobra.Command {
	var earlier bool

	cmd := &cobra.Command{
		Use:   "shift <adjustment>",
		Short: "Move every queued event later, or earlier with --earlier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			negative := earlier
			if strings.HasPrefix(raw, "-") {
				negative = true
				raw = strings.TrimPrefix(raw, "-")
			}
			adjustment, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid adjustment: %w", err)
			}
			return r.send(cmd, api.CommandRequest{
				Type:       api.CommandShift,
				Adjustment: adjustment.String(),
				Negative:   negative,
			})
		},
	}
	cmd.Flags().BoolVar(&earlier, "earlier", false, "Move events earlier")
	return cmd
}

func newSimpleCmd(r *Runner, use, short, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.send(cmd, api.CommandRequest{Type: kind})
		},
	}
}

func newToggleCmd(r *Runner, use, short, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <on|off>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			return r.send(cmd, api.CommandRequest{Type: kind, Enabled: enabled})
		},
	}
}

func newSceneCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "scene <scene>",
		Short: "Switch to another scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scene, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			return r.send(cmd, api.CommandRequest{Type: api.CommandScene, Scene: scene})
		},
	}
}

func newStatusCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status <status> <state>",
		Short: "Set a status to one of its allowed states",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseID("status", args[0])
			if err != nil {
				return err
			}
			state, err := parseID("state", args[1])
			if err != nil {
				return err
			}
			return r.send(cmd, api.CommandRequest{Type: api.CommandStatus, Status: status, State: state})
		},
	}
}

func newInputCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "input <event> <text...>",
		Short: "Answer an input prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			return r.send(cmd, api.CommandRequest{Type: api.CommandInput, Event: event, Text: strings.Join(args[1:], " ")})
		},
	}
}

func newRequestCmd(r *Runner) *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "request <item>",
		Short: "Look up an item's description, or an event's actions with --detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			query := "description"
			if detail {
				query = "detail"
			}
			reply, err := r.client.Query(cmd.Context(), api.CommandRequest{Query: query, Item: item})
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(reply)
			}
			r.printReply(reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detail, "detail", false, "Return the event's actions")
	return cmd
}

func newEditCmd(r *Runner) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit --file <edits.json>",
		Short: "Apply a batch of configuration edits (use - for stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(file) == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return fail(err)
			}
			var edits []api.EditRequest
			if err := json.Unmarshal(raw, &edits); err != nil {
				return fail(fmt.Errorf("parse edits: %w", err))
			}
			return r.send(cmd, api.CommandRequest{Type: api.CommandEdit, Edits: edits})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON array of edits")
	return cmd
}

func newLoadCmd(r *Runner) *cobra.Command {
	var snapshot string
	var inline bool

	cmd := &cobra.Command{
		Use:   "load [path]",
		Short: "Load a configuration file or a saved snapshot",
		Long: strings.TrimSpace(`
Load replaces the running configuration. A path is read by the daemon;
with --inline the file is read and checked here and its contents sent
instead. --snapshot takes a snapshot id from "showrunner configs" or
"latest".`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ConfigLoadRequest
			switch {
			case snapshot != "" && len(args) == 0:
				req.SnapshotID = snapshot
			case snapshot == "" && len(args) == 1 && inline:
				raw, err := readInput(cmd.InOrStdin(), args[0])
				if err != nil {
					return fail(err)
				}
				if _, err := configfile.Decode(strings.NewReader(string(raw))); err != nil {
					return fail(fmt.Errorf("%s: %w", args[0], err))
				}
				req.Body = string(raw)
			case snapshot == "" && len(args) == 1:
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				req.Path = path
			default:
				return fmt.Errorf("give either a path or --snapshot")
			}
			resp, err := r.client.LoadConfig(cmd.Context(), req)
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(resp)
			}
			r.printLoaded(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot id, or latest")
	cmd.Flags().BoolVar(&inline, "inline", false, "Read the file locally and send its contents")
	return cmd
}

func newSaveCmd(r *Runner) *cobra.Command {
	var label, export string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Snapshot the running configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ConfigSaveRequest{Label: label}
			if strings.TrimSpace(export) != "" {
				path, err := filepath.Abs(export)
				if err != nil {
					return err
				}
				req.Path = path
			}
			resp, err := r.client.SaveConfig(cmd.Context(), req)
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(resp)
			}
			r.printAccepted(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Snapshot label")
	cmd.Flags().StringVar(&export, "export", "", "Also write the configuration to this YAML file")
	return cmd
}

func newNotificationsCmd(r *Runner) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List recent notifications (oldest first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			env, err := r.client.Notifications(cmd.Context(), limit)
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(env)
			}
			for _, n := range env.Notifications {
				r.printNotification(n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max notifications to return (0 = daemon default)")
	return cmd
}

func newConfigsCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "List saved configuration snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.client.Configs(cmd.Context())
			if err != nil {
				return fail(err)
			}
			if r.json {
				return r.writeJSON(env)
			}
			r.printConfigs(env.Configs)
			return nil
		},
	}
}

func newWatchCmd(r *Runner) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := r.watchOpts
			opts.Once = once
			err := r.client.Watch(cmd.Context(), opts, func(env api.UpdateEnvelope) error {
				if r.json {
					return json.NewEncoder(r.out).Encode(env)
				}
				r.printUpdate(env)
				return nil
			})
			if err != nil && cmd.Context().Err() != nil {
				return nil
			}
			return fail(err)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Exit when the connection closes instead of reconnecting")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(io.LimitReader(stdin, 4<<20))
	}
	return os.ReadFile(path)
}
