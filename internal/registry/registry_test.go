package registry

import (
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

func sampleRegistry() *Registry {
	cfg := &model.Configuration{
		DefaultScene: 10,
		Items: []model.ItemPair{
			model.NewPair(10, "Lobby", model.Hidden{}),
			model.NewPair(20, "Lights On", model.DisplayControl{}),
			model.NewPair(21, "Door Open", model.DisplayControl{}),
		},
		Scenes: map[model.ItemID]model.Scene{10: {Events: []model.ItemID{20, 21, 99}}},
		Events: map[model.ItemID]model.EventDetail{
			20: {model.QueueEvent{Event: 21, Delay: time.Second}},
			21: {model.Comment{Text: "opens the door"}},
		},
	}
	return FromConfiguration(cfg)
}

func TestDescriptionFallsBackForUnknownItems(t *testing.T) {
	r := sampleRegistry()
	if got := r.Description(20).Text; got != "Lights On" {
		t.Fatalf("expected Lights On, got %q", got)
	}
	d := r.Description(55)
	if d.Text != "Item 55" {
		t.Fatalf("expected placeholder, got %q", d.Text)
	}
	if _, ok := d.Display.(model.Hidden); !ok {
		t.Fatalf("expected hidden placeholder display, got %T", d.Display)
	}
}

func TestSceneEventsSkipsUnknownIDs(t *testing.T) {
	r := sampleRegistry()
	events := r.SceneEvents(10)
	if len(events) != 2 || events[0].ID != 20 || events[1].ID != 21 {
		t.Fatalf("unexpected scene events: %+v", events)
	}
}

func TestDeleteRemovesEverywhere(t *testing.T) {
	r := sampleRegistry()
	if !r.Delete(20) {
		t.Fatalf("expected delete to report removal")
	}
	if r.Has(20) || r.IsEvent(20) {
		t.Fatalf("item 20 still present")
	}
	if r.Delete(20) {
		t.Fatalf("second delete should report nothing removed")
	}
}

func TestDetailIsCopied(t *testing.T) {
	r := sampleRegistry()
	d, ok := r.Detail(20)
	if !ok {
		t.Fatalf("expected detail")
	}
	d[0] = model.Comment{Text: "mutated"}
	again, _ := r.Detail(20)
	if _, ok := again[0].(model.QueueEvent); !ok {
		t.Fatalf("registry detail was mutated: %+v", again)
	}
}
