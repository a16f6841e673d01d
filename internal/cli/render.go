package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/g960059/showrunner/internal/api"
	"github.com/g960059/showrunner/internal/configfile"
)

type styles struct {
	renderer *lipgloss.Renderer
	tag      lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	err      lipgloss.Style
}

func newStyles(re *lipgloss.Renderer) styles {
	return styles{
		renderer: re,
		tag:      re.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
		muted:    re.NewStyle().Foreground(lipgloss.Color("#767676")),
		ok:       re.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
		warn:     re.NewStyle().Foreground(lipgloss.Color("#FFB000")),
		err:      re.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
	}
}

func (s styles) item(it api.Item) string {
	text := it.Text
	if text == "" {
		text = fmt.Sprintf("#%d", it.ID)
	}
	if it.Display != nil && it.Display.Color != "" {
		return s.renderer.NewStyle().Foreground(lipgloss.Color(it.Display.Color)).Render(text)
	}
	return text
}

func (s styles) kind(kind string) string {
	switch kind {
	case "error":
		return s.err.Render(kind)
	case "warning":
		return s.warn.Render(kind)
	case "current":
		return s.ok.Render(kind)
	}
	return s.muted.Render(kind)
}

func (r *Runner) line(tag, format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.tag.Render(fmt.Sprintf("%-8s", tag)), fmt.Sprintf(format, args...))
}

func (r *Runner) printHealth(resp api.HealthResponse) {
	r.line("health", "%s  clients %d", r.styles.ok.Render(resp.Status), resp.Clients)
	if resp.Identifier == 0 && resp.Source == "" {
		r.line("config", "%s", r.styles.muted.Render("none loaded"))
		return
	}
	r.line("config", "%d  %s", resp.Identifier, r.styles.muted.Render(resp.Source))
}

func (r *Runner) printAccepted(resp api.CommandResponse) {
	state := r.styles.ok.Render("accepted")
	if !resp.Accepted {
		state = r.styles.err.Render("rejected")
	}
	r.line(resp.Type, "%s", state)
}

func (r *Runner) printLoaded(resp api.ConfigLoadResponse) {
	r.line("load", "%s config %d from %s", r.styles.ok.Render("accepted"), resp.Identifier, resp.Source)
}

func (r *Runner) printNotification(n api.Notification) {
	_, _ = fmt.Fprintf(r.out, "%s %-7s %s\n",
		r.styles.muted.Render(n.Time.Local().Format(time.TimeOnly)),
		r.styles.kind(n.Kind),
		n.Message)
}

func (r *Runner) printConfigs(configs []api.ConfigSnapshot) {
	if len(configs) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.muted.Render("no saved configurations"))
		return
	}
	for _, c := range configs {
		label := c.Label
		if label == "" {
			label = "-"
		}
		_, _ = fmt.Fprintf(r.out, "%s  %-6d %-20s %s\n",
			c.SnapshotID, c.Identifier, label,
			r.styles.muted.Render(c.CreatedAt.Local().Format(time.DateTime)))
	}
}

func (r *Runner) printReply(reply api.Reply) {
	if !reply.Found {
		r.line("reply", "%s %s", r.styles.item(reply.Item), r.styles.warn.Render("not found"))
		return
	}
	kind := "hidden"
	if reply.Item.Display != nil {
		kind = reply.Item.Display.Kind
	}
	r.line("reply", "%s (%d) %s", r.styles.item(reply.Item), reply.Item.ID, r.styles.muted.Render(kind))
	for _, a := range reply.Actions {
		_, _ = fmt.Fprintf(r.out, "  - %s\n", describeAction(a))
	}
}

func describeAction(a configfile.ActionSpec) string {
	switch a.Kind {
	case "new_scene":
		return fmt.Sprintf("new_scene %d", a.Scene)
	case "modify_status":
		return fmt.Sprintf("modify_status %d -> %d", a.Status, a.State)
	case "queue_event":
		return fmt.Sprintf("queue_event %d after %s", a.Event, a.Delay)
	case "cancel_event":
		return fmt.Sprintf("cancel_event %d", a.Event)
	case "select_event":
		return fmt.Sprintf("select_event on status %d", a.Status)
	case "broadcast":
		return fmt.Sprintf("broadcast %d", a.Event)
	case "request_input":
		return fmt.Sprintf("request_input %q", a.Prompt)
	case "comment":
		return fmt.Sprintf("comment %q", a.Text)
	}
	return a.Kind
}

func (r *Runner) printUpdate(env api.UpdateEnvelope) {
	switch env.Type {
	case api.UpdateConfigLoaded:
		cfg := env.Config
		if cfg == nil || cfg.Identifier == 0 {
			r.line("config", "%s", r.styles.muted.Render("unloaded"))
			return
		}
		r.line("config", "%d loaded from %s: %d scenes, %d statuses, scene %s",
			cfg.Identifier, cfg.Source, len(cfg.Scenes), len(cfg.Statuses), r.styles.item(cfg.CurrentScene))
	case api.UpdateWindow:
		if env.Window == nil {
			return
		}
		w := env.Window
		var flags []string
		if w.Debug {
			flags = append(flags, "debug")
		}
		if w.EditMode {
			flags = append(flags, "edit")
		}
		r.line("window", "scene %s  %d groups %s", r.styles.item(w.Scene), len(w.Groups), r.styles.muted.Render(strings.Join(flags, " ")))
		for _, g := range w.Groups {
			names := make([]string, 0, len(g.Events))
			for _, e := range g.Events {
				names = append(names, r.styles.item(e))
			}
			head := "  "
			if g.Label != nil {
				head += r.styles.item(*g.Label)
				if g.State != nil {
					head += " = " + r.styles.item(*g.State)
				}
				head += ": "
			}
			_, _ = fmt.Fprintf(r.out, "%s%s\n", head, strings.Join(names, ", "))
		}
	case api.UpdateStatusChanged:
		if env.Status == nil {
			return
		}
		r.line("status", "%s -> %s", r.styles.item(env.Status.Status), r.styles.item(env.Status.State))
	case api.UpdateNotification:
		if env.Notification != nil {
			r.printNotification(*env.Notification)
		}
	case api.UpdateTimeline:
		if len(env.Timeline) == 0 {
			r.line("timeline", "%s", r.styles.muted.Render("empty"))
			return
		}
		r.line("timeline", "%d upcoming", len(env.Timeline))
		for _, u := range env.Timeline {
			remaining := time.Duration(u.RemainingMS) * time.Millisecond
			_, _ = fmt.Fprintf(r.out, "  %s in %s %s\n", r.styles.item(u.Event), remaining,
				r.styles.muted.Render(fmt.Sprintf("(delay %s, start %s)", u.Delay, u.StartTime.Format(time.RFC3339Nano))))
		}
	case api.UpdateReply:
		if env.Reply != nil {
			r.printReply(*env.Reply)
		}
	case api.UpdateNotify:
		r.line("notify", "%s", env.Message)
	case api.UpdateInput:
		if env.Input != nil {
			r.line("input", "%s (%d): %s", r.styles.item(env.Input.Event), env.Input.Event.ID, env.Input.Prompt)
		}
	}
}
