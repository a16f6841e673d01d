package daemon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/api"
	"github.com/g960059/showrunner/internal/configfile"
	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/network"
)

var errUnknownCommand = errors.New("unknown command type")

// decodeCommand maps a wire command onto a loop command. Requests get a
// client requester; its id is returned so the caller can echo it.
func decodeCommand(req api.CommandRequest) (actor.Command, string, error) {
	switch strings.TrimSpace(req.Type) {
	case api.CommandTrigger:
		return actor.Trigger{
			Event:      model.ItemID(req.Event),
			CheckScene: boolOr(req.CheckScene, true),
			Broadcast:  boolOr(req.Broadcast, true),
			Manual:     true,
		}, "", nil
	case api.CommandQueue:
		delay, err := parseDuration("delay", req.Delay)
		if err != nil {
			return nil, "", err
		}
		return actor.Queue{Event: model.ItemID(req.Event), Delay: delay}, "", nil
	case api.CommandReschedule:
		if req.StartTime == nil {
			return nil, "", fmt.Errorf("start_time is required")
		}
		cmd := actor.Reschedule{Event: model.ItemID(req.Event), StartTime: *req.StartTime}
		if strings.TrimSpace(req.Delay) != "" {
			delay, err := parseDuration("delay", req.Delay)
			if err != nil {
				return nil, "", err
			}
			cmd.NewDelay = &delay
		}
		return cmd, "", nil
	case api.CommandShift:
		adjustment, err := parseDuration("adjustment", req.Adjustment)
		if err != nil {
			return nil, "", err
		}
		return actor.ShiftAll{Adjustment: adjustment, IsNegative: req.Negative}, "", nil
	case api.CommandClearQueue:
		return actor.ClearQueue{}, "", nil
	case api.CommandAllStop:
		return actor.AllStop{}, "", nil
	case api.CommandEdit:
		edit, err := decodeEdits(req.Edits)
		if err != nil {
			return nil, "", err
		}
		return edit, "", nil
	case api.CommandScene:
		return actor.SceneChange{Scene: model.ItemID(req.Scene)}, "", nil
	case api.CommandStatus:
		return actor.StatusChange{Status: model.ItemID(req.Status), State: model.ItemID(req.State)}, "", nil
	case api.CommandQuery:
		return decodeRequest(req)
	case api.CommandRedraw:
		return actor.Redraw{}, "", nil
	case api.CommandDebug:
		return actor.DebugMode{Enabled: req.Enabled}, "", nil
	case api.CommandEditMode:
		return actor.EditMode{Enabled: req.Enabled}, "", nil
	case api.CommandUnload:
		return actor.UnloadConfig{}, "", nil
	case api.CommandSave:
		return actor.SaveConfig{Label: req.Label, Path: req.Path}, "", nil
	case api.CommandInput:
		return actor.UserInput{Event: model.ItemID(req.Event), Text: req.Text}, "", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", errUnknownCommand, req.Type)
	}
}

func decodeRequest(req api.CommandRequest) (actor.Command, string, error) {
	kind := actor.QueryKind(strings.TrimSpace(req.Query))
	switch kind {
	case "":
		kind = actor.QueryDescription
	case actor.QueryDescription, actor.QueryDetail:
	default:
		return nil, "", fmt.Errorf("unknown query %q", req.Query)
	}
	requester := actor.NewRequester(actor.RequesterClient)
	if raw := strings.TrimSpace(req.RequestID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "", fmt.Errorf("request_id must be a uuid: %w", err)
		}
		requester.ID = id
	}
	cmd := actor.Request{
		ReplyTo: requester,
		Query:   actor.Query{Kind: kind, Item: model.ItemID(req.Item)},
	}
	return cmd, requester.ID.String(), nil
}

func decodeEdits(edits []api.EditRequest) (actor.Edit, error) {
	if len(edits) == 0 {
		return actor.Edit{}, fmt.Errorf("edits are required")
	}
	out := actor.Edit{Actions: make([]actor.EditAction, 0, len(edits))}
	for i, e := range edits {
		action, err := decodeEdit(e)
		if err != nil {
			return actor.Edit{}, fmt.Errorf("edit %d: %w", i, err)
		}
		out.Actions = append(out.Actions, action)
	}
	return out, nil
}

func decodeEdit(e api.EditRequest) (actor.EditAction, error) {
	if e.Type == api.EditDeleteItem {
		return actor.DeleteItem{ID: model.ItemID(e.Item.ID)}, nil
	}
	pair, err := decodePair(e.Item)
	if err != nil {
		return nil, err
	}
	switch e.Type {
	case api.EditModifyEvent:
		detail, err := configfile.ParseDetail(e.Actions)
		if err != nil {
			return nil, err
		}
		return actor.ModifyEvent{Pair: pair, Detail: detail}, nil
	case api.EditModifyStatus:
		return actor.ModifyStatus{Pair: pair, Status: model.Status{
			Current: model.ItemID(e.Current),
			Allowed: toIDs(e.Allowed),
		}}, nil
	case api.EditModifyScene:
		return actor.ModifyScene{Pair: pair, Scene: model.Scene{Events: toIDs(e.Events)}}, nil
	case api.EditModifyDescription:
		return actor.ModifyDescription{Pair: pair}, nil
	default:
		return nil, fmt.Errorf("unknown edit type %q", e.Type)
	}
}

func decodePair(item api.Item) (model.ItemPair, error) {
	var display model.Display = model.Hidden{}
	if item.Display != nil {
		d, err := item.Display.Display()
		if err != nil {
			return model.ItemPair{}, err
		}
		display = d
	}
	return model.NewPair(model.ItemID(item.ID), item.Text, display), nil
}

// networkCommand maps a datagram from another node onto a loop command.
// Remote triggers are never broadcast again.
func networkCommand(d network.Datagram) actor.Command {
	if d.Item == model.AllStopID {
		return actor.AllStop{FromNetwork: true}
	}
	return actor.Trigger{Event: d.Item, CheckScene: true, Broadcast: false}
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", field)
	}
	return d, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func toIDs(in []uint32) []model.ItemID {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.ItemID, len(in))
	for i, v := range in {
		out[i] = model.ItemID(v)
	}
	return out
}
