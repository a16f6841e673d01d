package model

import (
	"errors"
	"fmt"
	"time"
)

// ItemID identifies any configured item: an event, status, state, scene or label.
type ItemID uint32

// AllStopID is reserved for the all-stop broadcast and is never a configured item.
const AllStopID ItemID = 0

var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrNotFound              = errors.New("not found")
	ErrNoActiveConfiguration = errors.New("no active configuration")
	ErrUnknownScene          = errors.New("unknown scene")
	ErrSceneActive           = errors.New("scene is active")
)

type ItemDescription struct {
	Text    string
	Display Display
}

func NewDescription(text string, display Display) ItemDescription {
	if display == nil {
		display = Hidden{}
	}
	return ItemDescription{Text: text, Display: display}
}

// ItemPair carries an id together with its description so receivers never
// need a registry lookup to render it.
type ItemPair struct {
	ID          ItemID
	Description ItemDescription
}

func NewPair(id ItemID, text string, display Display) ItemPair {
	return ItemPair{ID: id, Description: NewDescription(text, display)}
}

func AllStopPair() ItemPair {
	return NewPair(AllStopID, "ALL STOP", Hidden{})
}

func (p ItemPair) String() string {
	if p.Description.Text == "" {
		return fmt.Sprintf("%d", p.ID)
	}
	return p.Description.Text
}

type RGB struct {
	R uint8
	G uint8
	B uint8
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

type StateRef struct {
	Status ItemID
	State  ItemID
}

type Style struct {
	Color          *RGB
	Highlight      *RGB
	HighlightState *StateRef
	Priority       *uint32
}

// DisplayKind is the serialized tag of a Display variant.
type DisplayKind string

const (
	DisplayKindControl      DisplayKind = "display_control"
	DisplayKindWith         DisplayKind = "display_with"
	DisplayKindDebug        DisplayKind = "display_debug"
	DisplayKindLabelControl DisplayKind = "label_control"
	DisplayKindLabelHidden  DisplayKind = "label_hidden"
	DisplayKindHidden       DisplayKind = "hidden"
)

// Display is the closed set of display classifications. Switches over it
// must handle every variant declared in this file.
type Display interface {
	Kind() DisplayKind
	isDisplay()
}

// DisplayControl items appear in the general control group.
type DisplayControl struct{ Style }

// DisplayWith items appear inside the group named by Group.
type DisplayWith struct {
	Group ItemID
	Style
}

// DisplayDebug items appear only in debug mode, grouped when Group is set.
type DisplayDebug struct {
	Group *ItemID
	Style
}

// LabelControl statuses are rendered as standalone labels.
type LabelControl struct{ Style }

type LabelHidden struct{ Style }

type Hidden struct{}

func (DisplayControl) Kind() DisplayKind { return DisplayKindControl }
func (DisplayWith) Kind() DisplayKind    { return DisplayKindWith }
func (DisplayDebug) Kind() DisplayKind   { return DisplayKindDebug }
func (LabelControl) Kind() DisplayKind   { return DisplayKindLabelControl }
func (LabelHidden) Kind() DisplayKind    { return DisplayKindLabelHidden }
func (Hidden) Kind() DisplayKind         { return DisplayKindHidden }

func (DisplayControl) isDisplay() {}
func (DisplayWith) isDisplay()    {}
func (DisplayDebug) isDisplay()   {}
func (LabelControl) isDisplay()   {}
func (LabelHidden) isDisplay()    {}
func (Hidden) isDisplay()         {}

// StyleOf returns the shared style of a display variant; Hidden has none.
func StyleOf(d Display) (Style, bool) {
	switch v := d.(type) {
	case DisplayControl:
		return v.Style, true
	case DisplayWith:
		return v.Style, true
	case DisplayDebug:
		return v.Style, true
	case LabelControl:
		return v.Style, true
	case LabelHidden:
		return v.Style, true
	case Hidden, nil:
		return Style{}, false
	default:
		panic(fmt.Sprintf("unhandled display variant %T", d))
	}
}

// PriorityOf orders items inside a group; items without a priority sort last.
func PriorityOf(d Display) (uint32, bool) {
	style, ok := StyleOf(d)
	if !ok || style.Priority == nil {
		return 0, false
	}
	return *style.Priority, true
}

type StatusDescription struct {
	Current ItemPair
	Allowed []ItemPair
}

// FullStatus maps each status to its described current and allowed states.
type FullStatus map[ItemID]StatusDescription

type UpcomingEvent struct {
	Event     ItemPair
	StartTime time.Time
	FireAt    time.Time
	Delay     time.Duration
}

// Remaining is the time left before the event fires, never negative.
func (u UpcomingEvent) Remaining(now time.Time) time.Duration {
	d := u.FireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type NotificationKind string

const (
	NotificationError   NotificationKind = "error"
	NotificationWarning NotificationKind = "warning"
	NotificationCurrent NotificationKind = "current"
	NotificationUpdate  NotificationKind = "update"
)

type Notification struct {
	Kind    NotificationKind
	Message string
	Time    time.Time
	Event   *ItemPair
}

func (n Notification) String() string {
	return fmt.Sprintf("%s %s: %s", n.Time.Format("15:04:05"), n.Kind, n.Message)
}
