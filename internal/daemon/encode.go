package daemon

import (
	"fmt"
	"time"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/api"
	"github.com/g960059/showrunner/internal/configfile"
	"github.com/g960059/showrunner/internal/model"
)

func toItem(p model.ItemPair) api.Item {
	item := api.Item{ID: uint32(p.ID), Text: p.Description.Text}
	if p.Description.Display != nil {
		if _, hidden := p.Description.Display.(model.Hidden); !hidden {
			spec := configfile.DisplaySpecOf(p.Description.Display)
			item.Display = &spec
		}
	}
	return item
}

func toItems(pairs []model.ItemPair) []api.Item {
	out := make([]api.Item, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, toItem(p))
	}
	return out
}

func toItemPtr(p *model.ItemPair) *api.Item {
	if p == nil {
		return nil
	}
	item := toItem(*p)
	return &item
}

func toNotification(id int64, n model.Notification) api.Notification {
	return api.Notification{
		ID:      id,
		Kind:    string(n.Kind),
		Message: n.Message,
		Time:    n.Time.UTC(),
		Event:   toItemPtr(n.Event),
	}
}

func toWindow(w actor.Window) *api.Window {
	out := &api.Window{
		Scene:    toItem(w.Scene),
		Groups:   make([]api.Group, 0, len(w.Groups)),
		Debug:    w.Debug,
		EditMode: w.EditMode,
	}
	for _, g := range w.Groups {
		group := api.Group{
			Label:  toItemPtr(g.Label),
			State:  toItemPtr(g.State),
			Events: toItems(g.Events),
		}
		if len(g.Allowed) > 0 {
			group.Allowed = toItems(g.Allowed)
		}
		out.Groups = append(out.Groups, group)
	}
	for _, l := range w.Labels {
		out.Labels = append(out.Labels, api.StatusState{Status: toItem(l.Status), State: toItem(l.State)})
	}
	return out
}

func toConfigInfo(u actor.ConfigLoaded) *api.ConfigInfo {
	info := &api.ConfigInfo{
		Identifier:   u.Identifier,
		Source:       u.Source,
		Scenes:       toItems(u.Scenes),
		CurrentScene: toItem(u.CurrentScene),
		Statuses:     make([]api.StatusInfo, 0, len(u.Statuses)),
	}
	for _, id := range model.SortedIDs(u.Statuses) {
		desc := u.Statuses[id]
		status := api.StatusInfo{
			Status:  api.Item{ID: uint32(id)},
			Current: toItem(desc.Current),
		}
		if len(desc.Allowed) > 0 {
			status.Allowed = toItems(desc.Allowed)
		}
		info.Statuses = append(info.Statuses, status)
	}
	return info
}

func toTimeline(upcoming []model.UpcomingEvent, now time.Time) []api.UpcomingEvent {
	out := make([]api.UpcomingEvent, 0, len(upcoming))
	for _, u := range upcoming {
		out = append(out, api.UpcomingEvent{
			Event:       toItem(u.Event),
			StartTime:   u.StartTime.UTC(),
			FireAt:      u.FireAt.UTC(),
			Delay:       u.Delay.String(),
			RemainingMS: u.Remaining(now).Milliseconds(),
		})
	}
	return out
}

// encodeUpdate renders a loop update as a wire envelope.
func encodeUpdate(u actor.Update, now time.Time) api.UpdateEnvelope {
	env := api.UpdateEnvelope{SchemaVersion: api.SchemaVersion, GeneratedAt: now.UTC()}
	switch v := u.(type) {
	case actor.ConfigLoaded:
		env.Type = api.UpdateConfigLoaded
		env.Config = toConfigInfo(v)
	case actor.WindowRefresh:
		env.Type = api.UpdateWindow
		env.Window = toWindow(v.Window)
	case actor.StatusChanged:
		env.Type = api.UpdateStatusChanged
		env.Status = &api.StatusState{Status: toItem(v.Status), State: toItem(v.State)}
	case actor.NotificationAppended:
		env.Type = api.UpdateNotification
		n := toNotification(0, v.Notification)
		env.Notification = &n
	case actor.TimelineRefresh:
		env.Type = api.UpdateTimeline
		env.Timeline = toTimeline(v.Upcoming, now)
	case actor.QueryReply:
		env.Type = api.UpdateReply
		env.Reply = &api.Reply{
			RequestID: v.ReplyTo.ID.String(),
			Requester: string(v.ReplyTo.Kind),
			Item:      toItem(v.Item),
			Found:     v.Found,
		}
		if v.Detail != nil {
			env.Reply.Actions = configfile.DetailSpecs(v.Detail)
		}
	case actor.Notify:
		env.Type = api.UpdateNotify
		env.Message = v.Message
	case actor.InputRequested:
		env.Type = api.UpdateInput
		env.Input = &api.InputRequest{Event: toItem(v.Event), Prompt: v.Prompt}
	default:
		panic(fmt.Sprintf("unhandled update %T", u))
	}
	return env
}
