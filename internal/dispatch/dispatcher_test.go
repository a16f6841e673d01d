package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/queue"
)

type fakeBroadcaster struct {
	sent []model.ItemID
	err  error
}

func (f *fakeBroadcaster) Broadcast(id model.ItemID, _ *uint32) error {
	f.sent = append(f.sent, id)
	return f.err
}

type fakeObserver struct {
	statuses [][2]model.ItemID
	scenes   []model.ItemID
	prompts  []string
}

func (f *fakeObserver) StatusChanged(status, state model.ItemID) {
	f.statuses = append(f.statuses, [2]model.ItemID{status, state})
}

func (f *fakeObserver) SceneChanged(scene model.ItemID) {
	f.scenes = append(f.scenes, scene)
}

func (f *fakeObserver) InputRequested(_ model.ItemID, prompt string) {
	f.prompts = append(f.prompts, prompt)
}

var epoch = time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC)

func sampleConfig() *model.Configuration {
	return &model.Configuration{
		Identifier:   7,
		DefaultScene: 1,
		Items: []model.ItemPair{
			model.NewPair(1, "Act One", model.Hidden{}),
			model.NewPair(2, "Act Two", model.Hidden{}),
			model.NewPair(10, "Go", model.DisplayControl{}),
			model.NewPair(11, "Lights", model.DisplayControl{}),
			model.NewPair(12, "Curtain", model.DisplayControl{}),
			model.NewPair(20, "Door", model.LabelControl{}),
			model.NewPair(21, "Open", model.Hidden{}),
			model.NewPair(22, "Closed", model.Hidden{}),
		},
		Scenes: map[model.ItemID]model.Scene{
			1: {Events: []model.ItemID{10, 11}},
			2: {Events: []model.ItemID{12}},
		},
		Statuses: map[model.ItemID]model.Status{
			20: {Current: 22, Allowed: []model.ItemID{21, 22}},
		},
		Events: map[model.ItemID]model.EventDetail{
			10: {
				model.ModifyStatus{Status: 20, State: 99},
				model.QueueEvent{Event: 11, Delay: 3 * time.Second},
				model.ModifyStatus{Status: 20, State: 21},
			},
			11: {model.NewScene{Scene: 2}},
			12: {model.SelectEvent{Status: 20, Events: map[model.ItemID]model.ItemID{21: 10, 22: 11}}},
		},
	}
}

func newDispatcher(t *testing.T) (*Dispatcher, *queue.Queue, *fakeBroadcaster, *fakeObserver) {
	t.Helper()
	q := queue.New(queue.DropPast)
	b := &fakeBroadcaster{}
	o := &fakeObserver{}
	d, err := New(sampleConfig(), Options{
		Scheduler:   q,
		Broadcaster: b,
		Observer:    o,
		Clock:       func() time.Time { return epoch },
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, q, b, o
}

func TestProcessSkipsEventOutsideCurrentScene(t *testing.T) {
	d, q, b, _ := newDispatcher(t)
	out := d.Process(12, true, true)
	if out.Skipped != SkipNotInScene {
		t.Fatalf("expected not_in_scene, got %q", out.Skipped)
	}
	if len(b.sent) != 0 {
		t.Fatalf("skipped event must not broadcast, got %v", b.sent)
	}
	if q.Len() != 0 {
		t.Fatalf("skipped event must not schedule anything")
	}
	if got := d.CurrentScene().ID; got != 1 {
		t.Fatalf("scene changed on skipped event: %d", got)
	}
}

func TestProcessRunsRemainingActionsAfterFailure(t *testing.T) {
	d, q, b, o := newDispatcher(t)
	out := d.Process(10, true, true)
	if !out.Dispatched() {
		t.Fatalf("expected dispatch, got %q", out.Skipped)
	}
	if len(out.Actions) != 3 {
		t.Fatalf("expected 3 action outcomes, got %d", len(out.Actions))
	}
	failures := out.Failures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, model.ErrInvalidTransition) {
		t.Fatalf("expected one invalid transition failure, got %+v", failures)
	}
	if q.Len() != 1 {
		t.Fatalf("expected queued follow-up, got %d entries", q.Len())
	}
	next, _ := q.Next()
	if !next.Equal(epoch.Add(3 * time.Second)) {
		t.Fatalf("unexpected fire time %v", next)
	}
	desc, _ := d.StatusDescription(20)
	if desc.Current.ID != 21 {
		t.Fatalf("expected status 20 in state 21, got %d", desc.Current.ID)
	}
	if len(o.statuses) != 1 || o.statuses[0] != [2]model.ItemID{20, 21} {
		t.Fatalf("unexpected status notifications %v", o.statuses)
	}
	if len(b.sent) != 1 || b.sent[0] != 10 {
		t.Fatalf("expected broadcast of 10, got %v", b.sent)
	}
}

func TestProcessWithoutBroadcastStaysLocal(t *testing.T) {
	d, _, b, _ := newDispatcher(t)
	d.Process(11, true, false)
	if len(b.sent) != 0 {
		t.Fatalf("unexpected broadcast %v", b.sent)
	}
	if got := d.CurrentScene().ID; got != 2 {
		t.Fatalf("expected scene 2, got %d", got)
	}
}

func TestBroadcastFailureIsSwallowed(t *testing.T) {
	d, _, b, _ := newDispatcher(t)
	b.err = errors.New("network down")
	out := d.Process(11, true, true)
	if len(out.Failures()) != 0 {
		t.Fatalf("broadcast error leaked into outcome: %+v", out.Failures())
	}
}

func TestSelectEventQueuesByStatusState(t *testing.T) {
	d, q, _, _ := newDispatcher(t)
	out := d.Process(12, false, false)
	if len(out.Failures()) != 0 {
		t.Fatalf("unexpected failures %+v", out.Failures())
	}
	ready := q.PopReady(epoch)
	if len(ready) != 1 || ready[0] != 11 {
		t.Fatalf("expected event 11 selected for state 22, got %v", ready)
	}
}

func TestDeletedEventFiresAsNoOp(t *testing.T) {
	d, _, b, _ := newDispatcher(t)
	if err := d.Delete(11); err != nil {
		t.Fatalf("delete item 11: %v", err)
	}
	out := d.Process(11, false, true)
	if out.Skipped != SkipNoDetail {
		t.Fatalf("expected no_detail, got %q", out.Skipped)
	}
	if len(b.sent) != 0 {
		t.Fatalf("no-op must not broadcast")
	}
	if out.Event.Description.Text != "Item 11" {
		t.Fatalf("expected placeholder description, got %q", out.Event.Description.Text)
	}
}

func TestDeleteCurrentSceneIsRejected(t *testing.T) {
	d, q, b, o := newDispatcher(t)
	if err := d.Delete(1); !errors.Is(err, model.ErrSceneActive) {
		t.Fatalf("expected ErrSceneActive, got %v", err)
	}
	if err := d.Delete(99); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := New(d.Configuration(), Options{Scheduler: q, Broadcaster: b, Observer: o}); err != nil {
		t.Fatalf("live configuration cannot be reloaded: %v", err)
	}

	if err := d.ChooseScene(2); err != nil {
		t.Fatalf("choose scene: %v", err)
	}
	if err := d.Delete(1); err != nil {
		t.Fatalf("delete inactive scene: %v", err)
	}
	cfg := d.Configuration()
	if _, ok := cfg.Scenes[1]; ok {
		t.Fatalf("deleted scene still serialized")
	}
	if _, err := New(cfg, Options{Scheduler: q, Broadcaster: b, Observer: o}); err != nil {
		t.Fatalf("configuration after delete cannot be reloaded: %v", err)
	}
}

func TestChooseUnknownScene(t *testing.T) {
	d, _, _, o := newDispatcher(t)
	if err := d.ChooseScene(42); !errors.Is(err, model.ErrUnknownScene) {
		t.Fatalf("expected ErrUnknownScene, got %v", err)
	}
	if len(o.scenes) != 0 {
		t.Fatalf("observer told about rejected scene")
	}
}

func TestConfigurationReflectsEdits(t *testing.T) {
	d, _, _, _ := newDispatcher(t)
	d.EditEvent(model.NewPair(30, "Blackout", model.DisplayControl{}), model.EventDetail{model.Comment{Text: "dark"}})
	if _, err := d.ModifyStatus(20, 21); err != nil {
		t.Fatalf("modify status: %v", err)
	}
	cfg := d.Configuration()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("saved configuration invalid: %v", err)
	}
	if _, ok := cfg.Events[30]; !ok {
		t.Fatalf("edited event missing from saved configuration")
	}
	if cfg.Statuses[20].Current != 21 {
		t.Fatalf("expected saved state 21, got %d", cfg.Statuses[20].Current)
	}
	if cfg.Identifier != 7 {
		t.Fatalf("identifier not preserved: %d", cfg.Identifier)
	}
}
