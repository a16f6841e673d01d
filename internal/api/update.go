package api

import (
	"time"

	"github.com/g960059/showrunner/internal/configfile"
)

// Update types streamed by GET /v1/ui.
const (
	UpdateConfigLoaded  = "config_loaded"
	UpdateWindow        = "window"
	UpdateStatusChanged = "status_changed"
	UpdateNotification  = "notification"
	UpdateTimeline      = "timeline"
	UpdateReply         = "reply"
	UpdateNotify        = "notify"
	UpdateInput         = "input_requested"
)

// UpdateEnvelope carries exactly one payload field matching Type.
type UpdateEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Type          string          `json:"type"`
	Config        *ConfigInfo     `json:"config,omitempty"`
	Window        *Window         `json:"window,omitempty"`
	Status        *StatusState    `json:"status,omitempty"`
	Notification  *Notification   `json:"notification,omitempty"`
	Timeline      []UpcomingEvent `json:"timeline,omitempty"`
	Reply         *Reply          `json:"reply,omitempty"`
	Message       string          `json:"message,omitempty"`
	Input         *InputRequest   `json:"input,omitempty"`
}

type ConfigInfo struct {
	Identifier   uint32       `json:"identifier"`
	Source       string       `json:"source,omitempty"`
	Scenes       []Item       `json:"scenes"`
	CurrentScene Item         `json:"current_scene"`
	Statuses     []StatusInfo `json:"statuses"`
}

type StatusInfo struct {
	Status  Item   `json:"status"`
	Current Item   `json:"current"`
	Allowed []Item `json:"allowed,omitempty"`
}

type StatusState struct {
	Status Item `json:"status"`
	State  Item `json:"state"`
}

type Window struct {
	Scene    Item          `json:"scene"`
	Groups   []Group       `json:"groups"`
	Labels   []StatusState `json:"labels,omitempty"`
	Debug    bool          `json:"debug"`
	EditMode bool          `json:"edit_mode"`
}

type Group struct {
	Label   *Item  `json:"label,omitempty"`
	State   *Item  `json:"state,omitempty"`
	Allowed []Item `json:"allowed,omitempty"`
	Events  []Item `json:"events"`
}

type UpcomingEvent struct {
	Event       Item      `json:"event"`
	StartTime   time.Time `json:"start_time"`
	FireAt      time.Time `json:"fire_at"`
	Delay       string    `json:"delay"`
	RemainingMS int64     `json:"remaining_ms"`
}

type Reply struct {
	RequestID string                  `json:"request_id"`
	Requester string                  `json:"requester"`
	Item      Item                    `json:"item"`
	Found     bool                    `json:"found"`
	Actions   []configfile.ActionSpec `json:"actions,omitempty"`
}

type InputRequest struct {
	Event  Item   `json:"event"`
	Prompt string `json:"prompt"`
}
