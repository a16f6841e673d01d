package model

import (
	"fmt"
	"time"
)

// ActionKind is the serialized tag of an Action variant.
type ActionKind string

const (
	ActionNewScene     ActionKind = "new_scene"
	ActionModifyStatus ActionKind = "modify_status"
	ActionQueueEvent   ActionKind = "queue_event"
	ActionCancelEvent  ActionKind = "cancel_event"
	ActionSelectEvent  ActionKind = "select_event"
	ActionBroadcast    ActionKind = "broadcast"
	ActionRequestInput ActionKind = "request_input"
	ActionComment      ActionKind = "comment"
)

// Action is one step of an EventDetail. The set of variants is closed.
type Action interface {
	Kind() ActionKind
	isAction()
}

type NewScene struct {
	Scene ItemID
}

type ModifyStatus struct {
	Status ItemID
	State  ItemID
}

type QueueEvent struct {
	Event ItemID
	Delay time.Duration
}

// CancelEvent removes every pending instance of Event from the queue.
type CancelEvent struct {
	Event ItemID
}

// SelectEvent queues the event mapped to the current state of Status.
type SelectEvent struct {
	Status ItemID
	Events map[ItemID]ItemID
}

type Broadcast struct {
	Payload *uint32
}

type RequestInput struct {
	Prompt string
}

type Comment struct {
	Text string
}

func (NewScene) Kind() ActionKind     { return ActionNewScene }
func (ModifyStatus) Kind() ActionKind { return ActionModifyStatus }
func (QueueEvent) Kind() ActionKind   { return ActionQueueEvent }
func (CancelEvent) Kind() ActionKind  { return ActionCancelEvent }
func (SelectEvent) Kind() ActionKind  { return ActionSelectEvent }
func (Broadcast) Kind() ActionKind    { return ActionBroadcast }
func (RequestInput) Kind() ActionKind { return ActionRequestInput }
func (Comment) Kind() ActionKind      { return ActionComment }

func (NewScene) isAction()     {}
func (ModifyStatus) isAction() {}
func (QueueEvent) isAction()   {}
func (CancelEvent) isAction()  {}
func (SelectEvent) isAction()  {}
func (Broadcast) isAction()    {}
func (RequestInput) isAction() {}
func (Comment) isAction()      {}

// EventDetail is the ordered list of actions run when an event fires.
type EventDetail []Action

// Clone copies the detail slice and any mutable maps inside its actions.
func (d EventDetail) Clone() EventDetail {
	if d == nil {
		return nil
	}
	out := make(EventDetail, 0, len(d))
	for _, a := range d {
		switch v := a.(type) {
		case SelectEvent:
			events := make(map[ItemID]ItemID, len(v.Events))
			for k, e := range v.Events {
				events[k] = e
			}
			out = append(out, SelectEvent{Status: v.Status, Events: events})
		case Broadcast:
			if v.Payload != nil {
				p := *v.Payload
				out = append(out, Broadcast{Payload: &p})
			} else {
				out = append(out, Broadcast{})
			}
		case NewScene, ModifyStatus, QueueEvent, CancelEvent, RequestInput, Comment:
			out = append(out, v)
		default:
			panic(fmt.Sprintf("unhandled action variant %T", a))
		}
	}
	return out
}

// Describe renders an action for notifications and CLI output.
func Describe(a Action) string {
	switch v := a.(type) {
	case NewScene:
		return fmt.Sprintf("change scene to %d", v.Scene)
	case ModifyStatus:
		return fmt.Sprintf("set status %d to %d", v.Status, v.State)
	case QueueEvent:
		return fmt.Sprintf("queue event %d after %s", v.Event, v.Delay)
	case CancelEvent:
		return fmt.Sprintf("cancel event %d", v.Event)
	case SelectEvent:
		return fmt.Sprintf("select event by status %d", v.Status)
	case Broadcast:
		if v.Payload != nil {
			return fmt.Sprintf("broadcast with payload %d", *v.Payload)
		}
		return "broadcast"
	case RequestInput:
		return fmt.Sprintf("request input %q", v.Prompt)
	case Comment:
		return "comment: " + v.Text
	default:
		panic(fmt.Sprintf("unhandled action variant %T", a))
	}
}
