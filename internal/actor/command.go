package actor

import (
	"time"

	"github.com/google/uuid"

	"github.com/g960059/showrunner/internal/model"
)

// Command is the closed set of messages the loop accepts.
type Command interface {
	isCommand()
}

// Trigger runs an event now. CheckScene drops it when it is not part of the
// current scene; Broadcast forwards the id to the other nodes. Manual marks a
// trigger sent by a client: in edit mode those return the event detail
// instead of firing. Queue and network firings are never diverted.
type Trigger struct {
	Event      model.ItemID
	CheckScene bool
	Broadcast  bool
	Manual     bool
}

// Queue schedules an event after Delay.
type Queue struct {
	Event model.ItemID
	Delay time.Duration
}

// Reschedule moves the pending instance identified by Event and StartTime.
// A nil NewDelay cancels it.
type Reschedule struct {
	Event     model.ItemID
	StartTime time.Time
	NewDelay  *time.Duration
}

type ShiftAll struct {
	Adjustment time.Duration
	IsNegative bool
}

type ClearQueue struct{}

// AllStop clears the queue and broadcasts the reserved all-stop id. An
// all-stop received from another node is not broadcast again.
type AllStop struct {
	FromNetwork bool
}

// Edit applies live changes to the loaded configuration in order.
type Edit struct {
	Actions []EditAction
}

type SceneChange struct {
	Scene model.ItemID
}

type StatusChange struct {
	Status model.ItemID
	State  model.ItemID
}

// Request asks for information about an item. The reply echoes ReplyTo.
type Request struct {
	ReplyTo Requester
	Query   Query
}

type Redraw struct{}

type DebugMode struct {
	Enabled bool
}

// EditMode makes triggers return the event detail instead of running it.
type EditMode struct {
	Enabled bool
}

// LoadConfig replaces the active configuration. Source names where it came
// from and is only used in notifications.
type LoadConfig struct {
	Config *model.Configuration
	Source string
}

type UnloadConfig struct{}

// SaveConfig hands a snapshot of the live configuration to the saver. Path,
// when set, also exports it as a file.
type SaveConfig struct {
	Label string
	Path  string
}

// UserInput answers a RequestInput action of Event.
type UserInput struct {
	Event model.ItemID
	Text  string
}

type Close struct{}

func (Trigger) isCommand()      {}
func (Queue) isCommand()        {}
func (Reschedule) isCommand()   {}
func (ShiftAll) isCommand()     {}
func (ClearQueue) isCommand()   {}
func (AllStop) isCommand()      {}
func (Edit) isCommand()         {}
func (SceneChange) isCommand()  {}
func (StatusChange) isCommand() {}
func (Request) isCommand()      {}
func (Redraw) isCommand()       {}
func (DebugMode) isCommand()    {}
func (EditMode) isCommand()     {}
func (LoadConfig) isCommand()   {}
func (UnloadConfig) isCommand() {}
func (SaveConfig) isCommand()   {}
func (UserInput) isCommand()    {}
func (Close) isCommand()        {}

// EditAction is one change inside an Edit command.
type EditAction interface {
	isEditAction()
}

type DeleteItem struct {
	ID model.ItemID
}

// ModifyEvent inserts or replaces an event and its detail.
type ModifyEvent struct {
	Pair   model.ItemPair
	Detail model.EventDetail
}

type ModifyStatus struct {
	Pair   model.ItemPair
	Status model.Status
}

type ModifyScene struct {
	Pair  model.ItemPair
	Scene model.Scene
}

type ModifyDescription struct {
	Pair model.ItemPair
}

func (DeleteItem) isEditAction()        {}
func (ModifyEvent) isEditAction()       {}
func (ModifyStatus) isEditAction()      {}
func (ModifyScene) isEditAction()       {}
func (ModifyDescription) isEditAction() {}

type QueryKind string

const (
	QueryDescription QueryKind = "description"
	QueryDetail      QueryKind = "detail"
)

type Query struct {
	Kind QueryKind
	Item model.ItemID
}

type RequesterKind string

const (
	RequesterTrigger RequesterKind = "trigger"
	RequesterEditor  RequesterKind = "editor"
	RequesterStatus  RequesterKind = "status"
	RequesterClient  RequesterKind = "client"
)

// Requester routes a reply back to the dialog or client that asked.
type Requester struct {
	Kind RequesterKind
	ID   uuid.UUID
}

func NewRequester(kind RequesterKind) Requester {
	return Requester{Kind: kind, ID: uuid.New()}
}

func (r Requester) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}
