package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/queue"
	"github.com/g960059/showrunner/internal/registry"
	"github.com/g960059/showrunner/internal/status"
)

// Scheduler is the part of the event queue the dispatcher may touch.
type Scheduler interface {
	Schedule(id model.ItemID, delay time.Duration, now time.Time) queue.Handle
	Cancel(id model.ItemID) int
}

// Broadcaster sends an item id, with an optional payload, to the other nodes.
type Broadcaster interface {
	Broadcast(id model.ItemID, payload *uint32) error
}

// Observer is told about side effects that the UI must reflect.
type Observer interface {
	StatusChanged(status, state model.ItemID)
	SceneChanged(scene model.ItemID)
	InputRequested(event model.ItemID, prompt string)
}

type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipNotInScene SkipReason = "not_in_scene"
	SkipNoDetail   SkipReason = "no_detail"
)

type ActionOutcome struct {
	Action model.Action
	Err    error
}

type Outcome struct {
	Event   model.ItemPair
	Skipped SkipReason
	Actions []ActionOutcome
}

func (o Outcome) Dispatched() bool {
	return o.Skipped == SkipNone
}

// Failures returns the actions that did not apply.
func (o Outcome) Failures() []ActionOutcome {
	var out []ActionOutcome
	for _, a := range o.Actions {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

type Options struct {
	Scheduler   Scheduler
	Broadcaster Broadcaster
	Observer    Observer
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Dispatcher owns the item registry and status table of one loaded
// configuration and executes event details against them.
type Dispatcher struct {
	identifier   uint32
	registry     *registry.Registry
	statuses     *status.Table
	currentScene model.ItemID
	scheduler    Scheduler
	broadcaster  Broadcaster
	observer     Observer
	clock        func() time.Time
	log          *slog.Logger
}

func New(cfg *model.Configuration, opts Options) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	statuses, err := status.NewTable(cfg.Statuses)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	d := &Dispatcher{
		identifier:   cfg.Identifier,
		registry:     registry.FromConfiguration(cfg),
		statuses:     statuses,
		currentScene: cfg.DefaultScene,
		scheduler:    opts.Scheduler,
		broadcaster:  opts.Broadcaster,
		observer:     opts.Observer,
		clock:        opts.Clock,
		log:          opts.Logger,
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d, nil
}

// Process dispatches one triggered event. Actions run in order and a failed
// action never prevents the remaining ones from running.
func (d *Dispatcher) Process(id model.ItemID, checkScene, broadcast bool) Outcome {
	out := Outcome{Event: d.registry.Pair(id)}
	if checkScene && !d.inCurrentScene(id) {
		out.Skipped = SkipNotInScene
		return out
	}
	detail, ok := d.registry.Detail(id)
	if !ok {
		out.Skipped = SkipNoDetail
		return out
	}
	for _, action := range detail {
		out.Actions = append(out.Actions, ActionOutcome{Action: action, Err: d.run(id, action)})
	}
	if broadcast {
		d.broadcast(id, nil)
	}
	return out
}

func (d *Dispatcher) run(event model.ItemID, action model.Action) error {
	switch a := action.(type) {
	case model.NewScene:
		return d.ChooseScene(a.Scene)
	case model.ModifyStatus:
		_, err := d.ModifyStatus(a.Status, a.State)
		return err
	case model.QueueEvent:
		d.schedule(a.Event, a.Delay)
		return nil
	case model.CancelEvent:
		if d.scheduler != nil {
			d.scheduler.Cancel(a.Event)
		}
		return nil
	case model.SelectEvent:
		state, ok := d.statuses.State(a.Status)
		if !ok {
			return fmt.Errorf("select by status %d: %w", a.Status, model.ErrNotFound)
		}
		next, ok := a.Events[state]
		if !ok {
			return fmt.Errorf("select by status %d: no event for state %d: %w", a.Status, state, model.ErrNotFound)
		}
		d.schedule(next, 0)
		return nil
	case model.Broadcast:
		d.broadcast(event, a.Payload)
		return nil
	case model.RequestInput:
		if d.observer != nil {
			d.observer.InputRequested(event, a.Prompt)
		}
		return nil
	case model.Comment:
		return nil
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

func (d *Dispatcher) schedule(id model.ItemID, delay time.Duration) {
	if d.scheduler == nil {
		return
	}
	d.scheduler.Schedule(id, delay, d.clock())
}

// broadcast never reports failure to the caller; the network is best effort.
func (d *Dispatcher) broadcast(id model.ItemID, payload *uint32) {
	if d.broadcaster == nil {
		return
	}
	if err := d.broadcaster.Broadcast(id, payload); err != nil {
		d.log.Debug("broadcast failed", "item_id", id, "err", err)
	}
}

func (d *Dispatcher) inCurrentScene(id model.ItemID) bool {
	scene, ok := d.registry.Scene(d.currentScene)
	return ok && scene.Contains(id)
}

// ChooseScene makes scene current. Pending queue entries are not touched.
func (d *Dispatcher) ChooseScene(scene model.ItemID) error {
	if !d.registry.IsScene(scene) {
		return fmt.Errorf("scene %d: %w", scene, model.ErrUnknownScene)
	}
	d.currentScene = scene
	if d.observer != nil {
		d.observer.SceneChanged(scene)
	}
	return nil
}

func (d *Dispatcher) ModifyStatus(statusID, state model.ItemID) (model.ItemID, error) {
	applied, err := d.statuses.Set(statusID, state)
	if err != nil {
		return applied, err
	}
	if d.observer != nil {
		d.observer.StatusChanged(statusID, applied)
	}
	return applied, nil
}

// EditEvent inserts or replaces the description and detail of an event.
func (d *Dispatcher) EditEvent(pair model.ItemPair, detail model.EventDetail) {
	d.registry.SetDescription(pair.ID, pair.Description)
	d.registry.SetDetail(pair.ID, detail)
}

func (d *Dispatcher) EditStatus(pair model.ItemPair, st model.Status) error {
	if err := d.statuses.Put(pair.ID, st); err != nil {
		return err
	}
	d.registry.SetDescription(pair.ID, pair.Description)
	return nil
}

func (d *Dispatcher) EditScene(pair model.ItemPair, scene model.Scene) {
	d.registry.SetDescription(pair.ID, pair.Description)
	d.registry.SetScene(pair.ID, scene)
}

func (d *Dispatcher) EditDescription(pair model.ItemPair) {
	d.registry.SetDescription(pair.ID, pair.Description)
}

// Delete removes the item from the registry and status table. The queue is
// not scanned; pending instances fire later as no-detail no-ops. The current
// scene cannot be deleted.
func (d *Dispatcher) Delete(id model.ItemID) error {
	if id == d.currentScene {
		return fmt.Errorf("delete scene %d: %w", id, model.ErrSceneActive)
	}
	removed := d.registry.Delete(id)
	if d.statuses.Has(id) {
		d.statuses.Delete(id)
		removed = true
	}
	if !removed {
		return fmt.Errorf("delete item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (d *Dispatcher) Description(id model.ItemID) model.ItemDescription {
	return d.registry.Description(id)
}

func (d *Dispatcher) Pair(id model.ItemID) model.ItemPair {
	return d.registry.Pair(id)
}

func (d *Dispatcher) Detail(id model.ItemID) (model.EventDetail, bool) {
	return d.registry.Detail(id)
}

func (d *Dispatcher) Identifier() uint32 {
	return d.identifier
}

func (d *Dispatcher) CurrentScene() model.ItemPair {
	return d.registry.Pair(d.currentScene)
}

// SceneEvents lists the items legal in the current scene.
func (d *Dispatcher) SceneEvents() []model.ItemPair {
	return d.registry.SceneEvents(d.currentScene)
}

func (d *Dispatcher) Scenes() []model.ItemPair {
	ids := d.registry.SceneIDs()
	out := make([]model.ItemPair, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.registry.Pair(id))
	}
	return out
}

func (d *Dispatcher) IsStatus(id model.ItemID) bool {
	return d.statuses.Has(id)
}

func (d *Dispatcher) StatusDescription(id model.ItemID) (model.StatusDescription, bool) {
	current, ok := d.statuses.State(id)
	if !ok {
		return model.StatusDescription{}, false
	}
	allowed := d.statuses.Allowed(id)
	desc := model.StatusDescription{
		Current: d.registry.Pair(current),
		Allowed: make([]model.ItemPair, 0, len(allowed)),
	}
	for _, state := range allowed {
		desc.Allowed = append(desc.Allowed, d.registry.Pair(state))
	}
	return desc, true
}

func (d *Dispatcher) FullStatus() model.FullStatus {
	full := model.FullStatus{}
	for _, id := range d.statuses.IDs() {
		if desc, ok := d.StatusDescription(id); ok {
			full[id] = desc
		}
	}
	return full
}

// Items lists every described item; used when sorting the event window.
func (d *Dispatcher) Items() []model.ItemPair {
	return d.registry.Items()
}

// Configuration serializes the live registry, statuses and current scene
// back into the shape accepted on load.
func (d *Dispatcher) Configuration() *model.Configuration {
	return &model.Configuration{
		Identifier:   d.identifier,
		DefaultScene: d.currentScene,
		Items:        d.registry.Items(),
		Scenes:       d.registry.ScenesSnapshot(),
		Statuses:     d.statuses.Snapshot(),
		Events:       d.registry.EventsSnapshot(),
	}
}
