package actor

import (
	"github.com/g960059/showrunner/internal/model"
)

// Update is the closed set of messages the loop emits to the UI sink.
type Update interface {
	isUpdate()
}

// ConfigLoaded is sent after a configuration becomes active. Identifier and
// the other fields are zero after an unload.
type ConfigLoaded struct {
	Identifier   uint32
	Source       string
	Scenes       []model.ItemPair
	CurrentScene model.ItemPair
	Statuses     model.FullStatus
}

type WindowRefresh struct {
	Window Window
}

type StatusChanged struct {
	Status model.ItemPair
	State  model.ItemPair
}

type NotificationAppended struct {
	Notification model.Notification
}

// TimelineRefresh carries the pending events, soonest first.
type TimelineRefresh struct {
	Upcoming []model.UpcomingEvent
}

// QueryReply answers a Request, or a trigger while in edit mode. Detail is
// set only for detail queries on events.
type QueryReply struct {
	ReplyTo Requester
	Item    model.ItemPair
	Detail  model.EventDetail
	Found   bool
}

// Notify is a short toast message.
type Notify struct {
	Message string
}

type InputRequested struct {
	Event  model.ItemPair
	Prompt string
}

func (ConfigLoaded) isUpdate()         {}
func (WindowRefresh) isUpdate()        {}
func (StatusChanged) isUpdate()        {}
func (NotificationAppended) isUpdate() {}
func (TimelineRefresh) isUpdate()      {}
func (QueryReply) isUpdate()           {}
func (Notify) isUpdate()               {}
func (InputRequested) isUpdate()       {}
