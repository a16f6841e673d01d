package testutil

import (
	"time"

	"github.com/g960059/showrunner/internal/model"
)

// Item ids of SampleConfiguration.
const (
	SceneLobby   model.ItemID = 1
	SceneFinale  model.ItemID = 2
	EventLights  model.ItemID = 10
	EventSound   model.ItemID = 11
	EventCurtain model.ItemID = 12
	EventPing    model.ItemID = 13
	EventUnlock  model.ItemID = 14
	StatusDoor   model.ItemID = 20
	StateOpen    model.ItemID = 21
	StateClosed  model.ItemID = 22
)

// SampleConfiguration is a small two-scene show used across package tests.
func SampleConfiguration() *model.Configuration {
	first := uint32(1)
	second := uint32(2)
	door := StatusDoor
	return &model.Configuration{
		Identifier:   42,
		DefaultScene: SceneLobby,
		Items: []model.ItemPair{
			model.NewPair(SceneLobby, "Lobby", model.Hidden{}),
			model.NewPair(SceneFinale, "Finale", model.Hidden{}),
			model.NewPair(EventLights, "Lights Up", model.DisplayControl{Style: model.Style{Priority: &second}}),
			model.NewPair(EventSound, "Sound Cue", model.DisplayWith{Group: StatusDoor}),
			model.NewPair(EventCurtain, "Curtain", model.DisplayControl{Style: model.Style{Priority: &first}}),
			model.NewPair(EventPing, "Ping", model.DisplayDebug{Group: &door}),
			model.NewPair(EventUnlock, "Unlock", model.DisplayControl{}),
			model.NewPair(StatusDoor, "Door", model.LabelControl{Style: model.Style{Color: &model.RGB{R: 255}}}),
			model.NewPair(StateOpen, "Open", model.Hidden{}),
			model.NewPair(StateClosed, "Closed", model.Hidden{}),
		},
		Scenes: map[model.ItemID]model.Scene{
			SceneLobby:  {Events: []model.ItemID{EventLights, EventSound, EventCurtain, EventPing, EventUnlock}},
			SceneFinale: {Events: []model.ItemID{EventCurtain}},
		},
		Statuses: map[model.ItemID]model.Status{
			StatusDoor: {Current: StateClosed, Allowed: []model.ItemID{StateOpen, StateClosed}},
		},
		Events: map[model.ItemID]model.EventDetail{
			EventLights:  {model.Comment{Text: "house lights"}},
			EventSound:   {model.QueueEvent{Event: EventLights, Delay: 2 * time.Second}},
			EventCurtain: {model.NewScene{Scene: SceneFinale}},
			EventPing:    {model.Broadcast{Payload: &second}},
			EventUnlock: {
				model.ModifyStatus{Status: StatusDoor, State: StateOpen},
				model.RequestInput{Prompt: "Who opened the door?"},
			},
		},
	}
}
