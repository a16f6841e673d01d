package configfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/g960059/showrunner/internal/model"
)

var ErrUnknownKind = errors.New("unknown kind")

type file struct {
	Identifier   uint32                  `yaml:"identifier"`
	DefaultScene uint32                  `yaml:"default_scene"`
	Items        []itemFile              `yaml:"items"`
	Scenes       map[uint32]sceneFile    `yaml:"scenes,omitempty"`
	Statuses     map[uint32]statusFile   `yaml:"statuses,omitempty"`
	Events       map[uint32][]ActionSpec `yaml:"events,omitempty"`
}

type itemFile struct {
	ID      uint32      `yaml:"id"`
	Text    string      `yaml:"text"`
	Display DisplaySpec `yaml:"display"`
}

// DisplaySpec is the serialized form of a model.Display.
type DisplaySpec struct {
	Kind           string        `yaml:"kind" json:"kind"`
	Group          *uint32       `yaml:"group,omitempty" json:"group,omitempty"`
	Color          string        `yaml:"color,omitempty" json:"color,omitempty"`
	Highlight      string        `yaml:"highlight,omitempty" json:"highlight,omitempty"`
	HighlightState *StateRefSpec `yaml:"highlight_state,omitempty" json:"highlight_state,omitempty"`
	Priority       *uint32       `yaml:"priority,omitempty" json:"priority,omitempty"`
}

type StateRefSpec struct {
	Status uint32 `yaml:"status" json:"status"`
	State  uint32 `yaml:"state" json:"state"`
}

type sceneFile struct {
	Events []uint32 `yaml:"events"`
}

type statusFile struct {
	Current uint32   `yaml:"current"`
	Allowed []uint32 `yaml:"allowed,omitempty"`
}

// ActionSpec is the serialized form of a model.Action. Kind selects which
// of the other fields apply.
type ActionSpec struct {
	Kind    string            `yaml:"kind" json:"kind"`
	Scene   uint32            `yaml:"scene,omitempty" json:"scene,omitempty"`
	Status  uint32            `yaml:"status,omitempty" json:"status,omitempty"`
	State   uint32            `yaml:"state,omitempty" json:"state,omitempty"`
	Event   uint32            `yaml:"event,omitempty" json:"event,omitempty"`
	Delay   string            `yaml:"delay,omitempty" json:"delay,omitempty"`
	Events  map[uint32]uint32 `yaml:"events,omitempty" json:"events,omitempty"`
	Payload *uint32           `yaml:"payload,omitempty" json:"payload,omitempty"`
	Prompt  string            `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Text    string            `yaml:"text,omitempty" json:"text,omitempty"`
}

// Decode parses and validates a YAML configuration. Unknown fields are errors.
func Decode(r io.Reader) (*model.Configuration, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("yaml unmarshal: empty document")
		}
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	cfg, err := f.configuration()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation after load: %w", err)
	}
	return cfg, nil
}

func Encode(cfg *model.Configuration) ([]byte, error) {
	f, err := fromConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func Load(path string) (*model.Configuration, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close() //nolint:errcheck
	cfg, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path through a temporary file so a crash never leaves a
// truncated configuration behind.
func Save(path string, cfg *model.Configuration) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

func (f file) configuration() (*model.Configuration, error) {
	cfg := &model.Configuration{
		Identifier:   f.Identifier,
		DefaultScene: model.ItemID(f.DefaultScene),
		Scenes:       make(map[model.ItemID]model.Scene, len(f.Scenes)),
		Statuses:     make(map[model.ItemID]model.Status, len(f.Statuses)),
		Events:       make(map[model.ItemID]model.EventDetail, len(f.Events)),
	}
	for _, item := range f.Items {
		display, err := item.Display.Display()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}
		cfg.Items = append(cfg.Items, model.NewPair(model.ItemID(item.ID), item.Text, display))
	}
	for id, s := range f.Scenes {
		cfg.Scenes[model.ItemID(id)] = model.Scene{Events: toIDs(s.Events)}
	}
	for id, s := range f.Statuses {
		cfg.Statuses[model.ItemID(id)] = model.Status{Current: model.ItemID(s.Current), Allowed: toIDs(s.Allowed)}
	}
	for id, actions := range f.Events {
		detail, err := ParseDetail(actions)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		cfg.Events[model.ItemID(id)] = detail
	}
	return cfg, nil
}

func fromConfiguration(cfg *model.Configuration) (file, error) {
	if cfg == nil {
		return file{}, fmt.Errorf("configuration is nil")
	}
	f := file{
		Identifier:   cfg.Identifier,
		DefaultScene: uint32(cfg.DefaultScene),
		Scenes:       make(map[uint32]sceneFile, len(cfg.Scenes)),
		Statuses:     make(map[uint32]statusFile, len(cfg.Statuses)),
		Events:       make(map[uint32][]ActionSpec, len(cfg.Events)),
	}
	for _, item := range cfg.Items {
		f.Items = append(f.Items, itemFile{
			ID:      uint32(item.ID),
			Text:    item.Description.Text,
			Display: DisplaySpecOf(item.Description.Display),
		})
	}
	for id, s := range cfg.Scenes {
		f.Scenes[uint32(id)] = sceneFile{Events: fromIDs(s.Events)}
	}
	for id, s := range cfg.Statuses {
		f.Statuses[uint32(id)] = statusFile{Current: uint32(s.Current), Allowed: fromIDs(s.Allowed)}
	}
	for id, detail := range cfg.Events {
		f.Events[uint32(id)] = DetailSpecs(detail)
	}
	return f, nil
}

func (d DisplaySpec) Display() (model.Display, error) {
	style, err := d.style()
	if err != nil {
		return nil, err
	}
	switch model.DisplayKind(d.Kind) {
	case model.DisplayKindControl:
		return model.DisplayControl{Style: style}, nil
	case model.DisplayKindWith:
		if d.Group == nil {
			return nil, fmt.Errorf("display_with requires a group")
		}
		return model.DisplayWith{Group: model.ItemID(*d.Group), Style: style}, nil
	case model.DisplayKindDebug:
		var group *model.ItemID
		if d.Group != nil {
			g := model.ItemID(*d.Group)
			group = &g
		}
		return model.DisplayDebug{Group: group, Style: style}, nil
	case model.DisplayKindLabelControl:
		return model.LabelControl{Style: style}, nil
	case model.DisplayKindLabelHidden:
		return model.LabelHidden{Style: style}, nil
	case model.DisplayKindHidden, "":
		return model.Hidden{}, nil
	default:
		return nil, fmt.Errorf("display %q: %w", d.Kind, ErrUnknownKind)
	}
}

func (d DisplaySpec) style() (model.Style, error) {
	var style model.Style
	var err error
	if style.Color, err = parseColor(d.Color); err != nil {
		return style, fmt.Errorf("color: %w", err)
	}
	if style.Highlight, err = parseColor(d.Highlight); err != nil {
		return style, fmt.Errorf("highlight: %w", err)
	}
	if d.HighlightState != nil {
		style.HighlightState = &model.StateRef{
			Status: model.ItemID(d.HighlightState.Status),
			State:  model.ItemID(d.HighlightState.State),
		}
	}
	style.Priority = d.Priority
	return style, nil
}

func DisplaySpecOf(d model.Display) DisplaySpec {
	if d == nil {
		return DisplaySpec{Kind: string(model.DisplayKindHidden)}
	}
	out := DisplaySpec{Kind: string(d.Kind())}
	switch v := d.(type) {
	case model.DisplayWith:
		g := uint32(v.Group)
		out.Group = &g
	case model.DisplayDebug:
		if v.Group != nil {
			g := uint32(*v.Group)
			out.Group = &g
		}
	}
	if style, ok := model.StyleOf(d); ok {
		if style.Color != nil {
			out.Color = style.Color.Hex()
		}
		if style.Highlight != nil {
			out.Highlight = style.Highlight.Hex()
		}
		if style.HighlightState != nil {
			out.HighlightState = &StateRefSpec{
				Status: uint32(style.HighlightState.Status),
				State:  uint32(style.HighlightState.State),
			}
		}
		out.Priority = style.Priority
	}
	return out
}

func (a ActionSpec) Action() (model.Action, error) {
	switch model.ActionKind(a.Kind) {
	case model.ActionNewScene:
		return model.NewScene{Scene: model.ItemID(a.Scene)}, nil
	case model.ActionModifyStatus:
		return model.ModifyStatus{Status: model.ItemID(a.Status), State: model.ItemID(a.State)}, nil
	case model.ActionQueueEvent:
		delay, err := parseDelay(a.Delay)
		if err != nil {
			return nil, err
		}
		return model.QueueEvent{Event: model.ItemID(a.Event), Delay: delay}, nil
	case model.ActionCancelEvent:
		return model.CancelEvent{Event: model.ItemID(a.Event)}, nil
	case model.ActionSelectEvent:
		events := make(map[model.ItemID]model.ItemID, len(a.Events))
		for state, event := range a.Events {
			events[model.ItemID(state)] = model.ItemID(event)
		}
		return model.SelectEvent{Status: model.ItemID(a.Status), Events: events}, nil
	case model.ActionBroadcast:
		return model.Broadcast{Payload: a.Payload}, nil
	case model.ActionRequestInput:
		return model.RequestInput{Prompt: a.Prompt}, nil
	case model.ActionComment:
		return model.Comment{Text: a.Text}, nil
	default:
		return nil, fmt.Errorf("action %q: %w", a.Kind, ErrUnknownKind)
	}
}

func ActionSpecOf(a model.Action) ActionSpec {
	out := ActionSpec{Kind: string(a.Kind())}
	switch v := a.(type) {
	case model.NewScene:
		out.Scene = uint32(v.Scene)
	case model.ModifyStatus:
		out.Status, out.State = uint32(v.Status), uint32(v.State)
	case model.QueueEvent:
		out.Event = uint32(v.Event)
		out.Delay = v.Delay.String()
	case model.CancelEvent:
		out.Event = uint32(v.Event)
	case model.SelectEvent:
		out.Status = uint32(v.Status)
		out.Events = make(map[uint32]uint32, len(v.Events))
		for state, event := range v.Events {
			out.Events[uint32(state)] = uint32(event)
		}
	case model.Broadcast:
		out.Payload = v.Payload
	case model.RequestInput:
		out.Prompt = v.Prompt
	case model.Comment:
		out.Text = v.Text
	default:
		panic(fmt.Sprintf("unhandled action variant %T", a))
	}
	return out
}

func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("delay %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay %q is negative", s)
	}
	return d, nil
}

func parseColor(s string) (*model.RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return nil, nil
	}
	if len(s) != 6 {
		return nil, fmt.Errorf("%q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%q is not #RRGGBB", s)
	}
	return &model.RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
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

func fromIDs(in []model.ItemID) []uint32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}

// ParseDetail converts serialized actions into an EventDetail.
func ParseDetail(specs []ActionSpec) (model.EventDetail, error) {
	detail := make(model.EventDetail, 0, len(specs))
	for i, spec := range specs {
		action, err := spec.Action()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		detail = append(detail, action)
	}
	return detail, nil
}

func DetailSpecs(detail model.EventDetail) []ActionSpec {
	out := make([]ActionSpec, 0, len(detail))
	for _, a := range detail {
		out = append(out, ActionSpecOf(a))
	}
	return out
}
