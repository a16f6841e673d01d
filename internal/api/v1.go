package api

import (
	"time"

	"github.com/g960059/showrunner/internal/configfile"
)

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

const (
	CodeBadRequest     = "E_BAD_REQUEST"
	CodeNotFound       = "E_NOT_FOUND"
	CodeUnavailable    = "E_UNAVAILABLE"
	CodeInternal       = "E_INTERNAL"
	CodeUnknownCommand = "E_UNKNOWN_COMMAND"
)

// Item is an id together with how it is displayed.
type Item struct {
	ID      uint32                  `json:"id"`
	Text    string                  `json:"text,omitempty"`
	Display *configfile.DisplaySpec `json:"display,omitempty"`
}

// Command types accepted by POST /v1/commands and the /v1/ui stream.
const (
	CommandTrigger    = "trigger"
	CommandQueue      = "queue"
	CommandReschedule = "reschedule"
	CommandShift      = "shift"
	CommandClearQueue = "clear_queue"
	CommandAllStop    = "all_stop"
	CommandEdit       = "edit"
	CommandScene      = "scene"
	CommandStatus     = "status"
	CommandQuery      = "request"
	CommandRedraw     = "redraw"
	CommandDebug      = "debug"
	CommandEditMode   = "edit_mode"
	CommandUnload     = "unload"
	CommandSave       = "save"
	CommandInput      = "input"
)

// CommandRequest is a flat envelope; Type selects which fields apply.
// Durations use Go duration syntax ("1.5s").
type CommandRequest struct {
	Type       string        `json:"type"`
	Event      uint32        `json:"event,omitempty"`
	CheckScene *bool         `json:"check_scene,omitempty"`
	Broadcast  *bool         `json:"broadcast,omitempty"`
	Delay      string        `json:"delay,omitempty"`
	StartTime  *time.Time    `json:"start_time,omitempty"`
	Adjustment string        `json:"adjustment,omitempty"`
	Negative   bool          `json:"negative,omitempty"`
	Scene      uint32        `json:"scene,omitempty"`
	Status     uint32        `json:"status,omitempty"`
	State      uint32        `json:"state,omitempty"`
	Enabled    bool          `json:"enabled,omitempty"`
	Text       string        `json:"text,omitempty"`
	Label      string        `json:"label,omitempty"`
	Path       string        `json:"path,omitempty"`
	Query      string        `json:"query,omitempty"`
	Item       uint32        `json:"item,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	Edits      []EditRequest `json:"edits,omitempty"`
}

const (
	EditDeleteItem        = "delete_item"
	EditModifyEvent       = "modify_event"
	EditModifyStatus      = "modify_status"
	EditModifyScene       = "modify_scene"
	EditModifyDescription = "modify_description"
)

type EditRequest struct {
	Type    string                  `json:"type"`
	Item    Item                    `json:"item"`
	Actions []configfile.ActionSpec `json:"actions,omitempty"`
	Events  []uint32                `json:"events,omitempty"`
	Current uint32                  `json:"current,omitempty"`
	Allowed []uint32                `json:"allowed,omitempty"`
}

type CommandResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Type          string    `json:"type"`
	RequestID     string    `json:"request_id,omitempty"`
	Accepted      bool      `json:"accepted"`
}

// ConfigLoadRequest names exactly one source: a file path on the daemon
// host, an inline YAML body, or a stored snapshot.
type ConfigLoadRequest struct {
	Path       string `json:"path,omitempty"`
	Body       string `json:"body,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type ConfigLoadResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Identifier    uint32    `json:"identifier"`
	Source        string    `json:"source"`
}

type ConfigSaveRequest struct {
	Label string `json:"label,omitempty"`
	Path  string `json:"path,omitempty"`
}

type Notification struct {
	ID      int64     `json:"id,omitempty"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Event   *Item     `json:"event,omitempty"`
}

type NotificationsEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Notifications []Notification `json:"notifications"`
}

type ConfigSnapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	Identifier uint32    `json:"identifier"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ConfigsEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Configs       []ConfigSnapshot `json:"configs"`
}
