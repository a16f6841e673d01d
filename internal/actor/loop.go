package actor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/g960059/showrunner/internal/dispatch"
	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/queue"
)

const DefaultCoalesceDelay = 10 * time.Microsecond

// Recorder persists notifications. Record must not block the loop.
type Recorder interface {
	Record(model.Notification)
}

// Saver writes a configuration snapshot somewhere durable, off the loop.
type Saver interface {
	Save(cfg *model.Configuration, req SaveConfig)
}

type Options struct {
	Sink        Sink
	Recorder    Recorder
	Broadcaster dispatch.Broadcaster
	Saver       Saver
	Clock       func() time.Time
	Logger      *slog.Logger

	ShiftPolicy queue.ShiftPolicy
	// CheckSceneOnFire applies the scene check to events fired from the queue.
	CheckSceneOnFire bool
	CoalesceDelay    time.Duration
}

// Loop is the single goroutine that owns the queue, the dispatcher and the
// loaded configuration. Everything else talks to it through Post.
type Loop struct {
	mailbox    *Mailbox
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	source     string
	debug      bool
	editMode   bool

	sink             Sink
	recorder         Recorder
	broadcaster      dispatch.Broadcaster
	saver            Saver
	clock            func() time.Time
	log              *slog.Logger
	checkSceneOnFire bool
	coalesceDelay    time.Duration
}

func New(opts Options) *Loop {
	l := &Loop{
		mailbox:          NewMailbox(),
		queue:            queue.New(opts.ShiftPolicy),
		sink:             opts.Sink,
		recorder:         opts.Recorder,
		broadcaster:      opts.Broadcaster,
		saver:            opts.Saver,
		clock:            opts.Clock,
		log:              opts.Logger,
		checkSceneOnFire: opts.CheckSceneOnFire,
		coalesceDelay:    opts.CoalesceDelay,
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Post enqueues cmd. It never blocks and reports false once the loop stopped.
func (l *Loop) Post(cmd Command) bool {
	return l.mailbox.Post(cmd)
}

// Close stops the loop after the commands already posted.
func (l *Loop) Close() {
	l.mailbox.Close()
}

// Run processes commands until Close, a Close command, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.mailbox.Close()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	l.log.Info("control loop started")
	defer l.log.Info("control loop stopped")
	for {
		l.armTimer(timer)
		select {
		case <-ctx.Done():
			return nil
		case <-l.mailbox.Ready():
			if !l.drainMailbox(ctx) {
				return nil
			}
		case <-timer.C:
			l.drainDue()
		}
	}
}

func (l *Loop) drainMailbox(ctx context.Context) bool {
	for ctx.Err() == nil {
		cmd, ok, done := l.mailbox.Pop()
		if done {
			return false
		}
		if !ok {
			return true
		}
		if !l.handle(cmd) {
			return false
		}
		l.drainDue()
	}
	return false
}

func (l *Loop) armTimer(timer *time.Timer) {
	next, ok := l.queue.Next()
	if !ok {
		timer.Stop()
		return
	}
	wait := next.Sub(l.clock())
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}

// drainDue reposts every due queue entry as a trigger behind the commands
// already waiting.
func (l *Loop) drainDue() {
	ready := l.queue.PopReady(l.clock())
	if len(ready) == 0 {
		return
	}
	for _, id := range ready {
		l.mailbox.Post(Trigger{Event: id, CheckScene: l.checkSceneOnFire, Broadcast: true})
	}
	l.sendTimeline()
}

func (l *Loop) handle(cmd Command) bool {
	switch c := cmd.(type) {
	case Close:
		return false
	case AllStop:
		l.allStop(c.FromNetwork)
	case DebugMode:
		l.debug = c.Enabled
		l.mailbox.Post(Redraw{})
	case EditMode:
		l.editMode = c.Enabled
		l.mailbox.Post(Redraw{})
	case LoadConfig:
		l.load(c)
	case UnloadConfig:
		l.unload()
	case Request:
		l.reply(c)
	case Redraw:
		if l.dispatcher != nil {
			l.redraw()
		}
	default:
		if l.dispatcher == nil {
			l.notify(model.NotificationError, fmt.Sprintf("%s dropped: %v", commandName(cmd), model.ErrNoActiveConfiguration), nil)
			return true
		}
		l.handleActive(cmd)
	}
	return true
}

// handleActive runs commands that need a loaded configuration.
func (l *Loop) handleActive(cmd Command) {
	d := l.dispatcher
	switch c := cmd.(type) {
	case Trigger:
		if l.editMode && c.Manual {
			l.replyDetail(Requester{Kind: RequesterEditor}, c.Event)
			return
		}
		l.trigger(c)
	case Queue:
		l.queue.Schedule(c.Event, c.Delay, l.clock())
		l.sendTimeline()
	case Reschedule:
		if err := l.queue.Reschedule(c.Event, c.StartTime, c.NewDelay); err != nil {
			l.notify(model.NotificationWarning, fmt.Sprintf("Unable to change event %s: %v", d.Pair(c.Event), err), nil)
			return
		}
		l.coalesce()
		l.sendTimeline()
	case ShiftAll:
		dropped := l.queue.ShiftAll(c.Adjustment, c.IsNegative, l.clock())
		if dropped > 0 {
			l.log.Debug("shift dropped past events", "count", dropped)
		}
		l.sendTimeline()
	case ClearQueue:
		l.queue.Clear()
		l.coalesce()
		l.sendTimeline()
	case Edit:
		for _, action := range c.Actions {
			if err := l.applyEdit(action); err != nil {
				l.notify(model.NotificationWarning, fmt.Sprintf("Edit not applied: %v", err), nil)
			}
		}
		l.send(l.configLoaded())
		l.mailbox.Post(Redraw{})
	case SceneChange:
		if err := d.ChooseScene(c.Scene); err != nil {
			l.notify(model.NotificationWarning, fmt.Sprintf("Unable to change scene: %v", err), nil)
		}
	case StatusChange:
		if _, err := d.ModifyStatus(c.Status, c.State); err != nil {
			l.notify(model.NotificationWarning, fmt.Sprintf("Unable to change status %s: %v", d.Pair(c.Status), err), nil)
		}
	case SaveConfig:
		if l.saver == nil {
			l.notify(model.NotificationWarning, "Configuration not saved: no storage configured", nil)
			return
		}
		l.saver.Save(d.Configuration(), c)
	case UserInput:
		pair := d.Pair(c.Event)
		l.notify(model.NotificationUpdate, fmt.Sprintf("%s: %s", pair.Description.Text, c.Text), &pair)
	default:
		panic(fmt.Sprintf("unhandled command %T", cmd))
	}
}

func (l *Loop) trigger(c Trigger) {
	out := l.dispatcher.Process(c.Event, c.CheckScene, c.Broadcast)
	if !out.Dispatched() {
		l.log.Debug("event skipped", "item_id", c.Event, "reason", string(out.Skipped))
		return
	}
	for _, f := range out.Failures() {
		l.notify(model.NotificationWarning, fmt.Sprintf("%s: %s: %v", out.Event.Description.Text, model.Describe(f.Action), f.Err), &out.Event)
	}
	event := out.Event
	l.notify(model.NotificationCurrent, event.Description.Text, &event)
	l.send(Notify{Message: "Event: " + event.Description.Text})
	l.coalesce()
	l.sendTimeline()
}

func (l *Loop) allStop(fromNetwork bool) {
	l.queue.Clear()
	if l.broadcaster != nil && !fromNetwork {
		if err := l.broadcaster.Broadcast(model.AllStopID, nil); err != nil {
			l.log.Debug("all stop broadcast failed", "err", err)
		}
	}
	pair := model.AllStopPair()
	l.notify(model.NotificationError, "All Stop", &pair)
	l.coalesce()
	l.sendTimeline()
}

func (l *Loop) load(c LoadConfig) {
	d, err := dispatch.New(c.Config, dispatch.Options{
		Scheduler:   l.queue,
		Broadcaster: l.broadcaster,
		Observer:    observer{l},
		Clock:       l.clock,
		Logger:      l.log,
	})
	if err != nil {
		l.notify(model.NotificationError, fmt.Sprintf("Unable to load configuration %s: %v", c.Source, err), nil)
		return
	}
	l.queue.Clear()
	l.dispatcher = d
	l.source = c.Source
	l.send(l.configLoaded())
	l.notify(model.NotificationUpdate, fmt.Sprintf("Loaded configuration %s", c.Source), nil)
	l.sendTimeline()
	l.mailbox.Post(Redraw{})
}

func (l *Loop) unload() {
	if l.dispatcher == nil {
		return
	}
	l.queue.Clear()
	l.dispatcher = nil
	l.source = ""
	l.send(ConfigLoaded{})
	l.sendTimeline()
	l.notify(model.NotificationUpdate, "Configuration unloaded", nil)
}

func (l *Loop) reply(c Request) {
	if l.dispatcher == nil {
		l.send(QueryReply{ReplyTo: c.ReplyTo, Item: model.ItemPair{ID: c.Query.Item}})
		l.notify(model.NotificationWarning, fmt.Sprintf("No detail available: %v", model.ErrNoActiveConfiguration), nil)
		return
	}
	switch c.Query.Kind {
	case QueryDetail:
		l.replyDetail(c.ReplyTo, c.Query.Item)
	default:
		l.send(QueryReply{ReplyTo: c.ReplyTo, Item: l.dispatcher.Pair(c.Query.Item), Found: true})
	}
}

func (l *Loop) replyDetail(to Requester, id model.ItemID) {
	pair := l.dispatcher.Pair(id)
	detail, ok := l.dispatcher.Detail(id)
	if !ok {
		l.notify(model.NotificationWarning, fmt.Sprintf("Unable to find detail for event: %s", pair), nil)
	}
	l.send(QueryReply{ReplyTo: to, Item: pair, Detail: detail, Found: ok})
}

func (l *Loop) applyEdit(action EditAction) error {
	d := l.dispatcher
	switch e := action.(type) {
	case DeleteItem:
		if err := d.Delete(e.ID); err != nil {
			return err
		}
	case ModifyEvent:
		if err := checkEditable(e.Pair.ID); err != nil {
			return err
		}
		d.EditEvent(e.Pair, e.Detail)
	case ModifyStatus:
		if err := checkEditable(e.Pair.ID); err != nil {
			return err
		}
		return d.EditStatus(e.Pair, e.Status)
	case ModifyScene:
		if err := checkEditable(e.Pair.ID); err != nil {
			return err
		}
		d.EditScene(e.Pair, e.Scene)
	case ModifyDescription:
		if err := checkEditable(e.Pair.ID); err != nil {
			return err
		}
		d.EditDescription(e.Pair)
	default:
		panic(fmt.Sprintf("unhandled edit action %T", action))
	}
	return nil
}

func checkEditable(id model.ItemID) error {
	if id == model.AllStopID {
		return fmt.Errorf("item id %d is reserved", id)
	}
	return nil
}

func (l *Loop) redraw() {
	d := l.dispatcher
	l.send(WindowRefresh{Window: Window{
		Scene:    d.CurrentScene(),
		Groups:   sortEvents(d.SceneEvents(), d, l.debug),
		Labels:   statusLabels(d),
		Debug:    l.debug,
		EditMode: l.editMode,
	}})
}

func (l *Loop) configLoaded() ConfigLoaded {
	d := l.dispatcher
	return ConfigLoaded{
		Identifier:   d.Identifier(),
		Source:       l.source,
		Scenes:       d.Scenes(),
		CurrentScene: d.CurrentScene(),
		Statuses:     d.FullStatus(),
	}
}

func (l *Loop) sendTimeline() {
	pending := l.queue.Upcoming()
	upcoming := make([]model.UpcomingEvent, 0, len(pending))
	for _, p := range pending {
		var pair model.ItemPair
		if l.dispatcher != nil {
			pair = l.dispatcher.Pair(p.EventID)
		} else {
			pair = model.ItemPair{ID: p.EventID}
		}
		upcoming = append(upcoming, model.UpcomingEvent{
			Event:     pair,
			StartTime: p.StartTime,
			FireAt:    p.FireAt,
			Delay:     p.Delay(),
		})
	}
	l.send(TimelineRefresh{Upcoming: upcoming})
}

func (l *Loop) notify(kind model.NotificationKind, message string, event *model.ItemPair) {
	n := model.Notification{Kind: kind, Message: message, Time: l.clock(), Event: event}
	if l.recorder != nil {
		l.recorder.Record(n)
	}
	l.send(NotificationAppended{Notification: n})
}

func (l *Loop) send(u Update) {
	if l.sink != nil {
		l.sink.Send(u)
	}
}

// coalesce lets same-tick cascades settle before a timeline snapshot.
func (l *Loop) coalesce() {
	if l.coalesceDelay > 0 {
		time.Sleep(l.coalesceDelay)
	}
}

func commandName(cmd Command) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", cmd), "actor.")
}

// observer forwards dispatcher side effects to the UI.
type observer struct {
	l *Loop
}

func (o observer) StatusChanged(statusID, state model.ItemID) {
	d := o.l.dispatcher
	if d == nil {
		return
	}
	status, applied := d.Pair(statusID), d.Pair(state)
	o.l.send(StatusChanged{Status: status, State: applied})
	o.l.notify(model.NotificationUpdate, fmt.Sprintf("%s: %s", status.Description.Text, applied.Description.Text), &status)
	o.l.mailbox.Post(Redraw{})
}

func (o observer) SceneChanged(scene model.ItemID) {
	o.l.mailbox.Post(Redraw{})
}

func (o observer) InputRequested(event model.ItemID, prompt string) {
	if o.l.dispatcher == nil {
		return
	}
	o.l.send(InputRequested{Event: o.l.dispatcher.Pair(event), Prompt: prompt})
}
