package registry

import (
	"fmt"
	"slices"

	"github.com/g960059/showrunner/internal/model"
)

// Registry maps item ids to their descriptions, event details and scenes.
type Registry struct {
	items  map[model.ItemID]model.ItemDescription
	events map[model.ItemID]model.EventDetail
	scenes map[model.ItemID]model.Scene
}

func New() *Registry {
	return &Registry{
		items:  map[model.ItemID]model.ItemDescription{},
		events: map[model.ItemID]model.EventDetail{},
		scenes: map[model.ItemID]model.Scene{},
	}
}

// FromConfiguration builds a registry from a validated configuration.
func FromConfiguration(cfg *model.Configuration) *Registry {
	r := New()
	for _, item := range cfg.Items {
		r.items[item.ID] = item.Description
	}
	for id, detail := range cfg.Events {
		r.events[id] = detail.Clone()
	}
	for id, scene := range cfg.Scenes {
		r.scenes[id] = scene.Clone()
	}
	return r
}

// Description returns the item's description, or a hidden placeholder
// naming the id when the item is unknown.
func (r *Registry) Description(id model.ItemID) model.ItemDescription {
	if d, ok := r.items[id]; ok {
		return d
	}
	if id == model.AllStopID {
		return model.AllStopPair().Description
	}
	return model.NewDescription(fmt.Sprintf("Item %d", id), model.Hidden{})
}

func (r *Registry) Pair(id model.ItemID) model.ItemPair {
	return model.ItemPair{ID: id, Description: r.Description(id)}
}

func (r *Registry) Has(id model.ItemID) bool {
	_, ok := r.items[id]
	return ok
}

func (r *Registry) SetDescription(id model.ItemID, d model.ItemDescription) {
	if d.Display == nil {
		d.Display = model.Hidden{}
	}
	r.items[id] = d
}

func (r *Registry) Detail(id model.ItemID) (model.EventDetail, bool) {
	d, ok := r.events[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

func (r *Registry) SetDetail(id model.ItemID, detail model.EventDetail) {
	r.events[id] = detail.Clone()
}

func (r *Registry) IsEvent(id model.ItemID) bool {
	_, ok := r.events[id]
	return ok
}

func (r *Registry) Scene(id model.ItemID) (model.Scene, bool) {
	s, ok := r.scenes[id]
	if !ok {
		return model.Scene{}, false
	}
	return s.Clone(), true
}

func (r *Registry) SetScene(id model.ItemID, scene model.Scene) {
	r.scenes[id] = scene.Clone()
}

func (r *Registry) IsScene(id model.ItemID) bool {
	_, ok := r.scenes[id]
	return ok
}

func (r *Registry) SceneIDs() []model.ItemID {
	return model.SortedIDs(r.scenes)
}

// Delete removes the item from every table. Pending queue entries for it
// are left in place and fire as no-ops.
func (r *Registry) Delete(id model.ItemID) bool {
	_, hadItem := r.items[id]
	_, hadEvent := r.events[id]
	_, hadScene := r.scenes[id]
	delete(r.items, id)
	delete(r.events, id)
	delete(r.scenes, id)
	return hadItem || hadEvent || hadScene
}

// Items returns every described item in ascending id order.
func (r *Registry) Items() []model.ItemPair {
	ids := model.SortedIDs(r.items)
	out := make([]model.ItemPair, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ItemPair{ID: id, Description: r.items[id]})
	}
	return out
}

// SceneEvents returns the events of the scene in scene order, dropping ids
// no longer in the registry.
func (r *Registry) SceneEvents(scene model.ItemID) []model.ItemPair {
	s, ok := r.scenes[scene]
	if !ok {
		return nil
	}
	out := make([]model.ItemPair, 0, len(s.Events))
	for _, id := range s.Events {
		if !r.Has(id) {
			continue
		}
		out = append(out, r.Pair(id))
	}
	return out
}

func (r *Registry) EventsSnapshot() map[model.ItemID]model.EventDetail {
	out := make(map[model.ItemID]model.EventDetail, len(r.events))
	for id, d := range r.events {
		out[id] = d.Clone()
	}
	return out
}

func (r *Registry) ScenesSnapshot() map[model.ItemID]model.Scene {
	out := make(map[model.ItemID]model.Scene, len(r.scenes))
	for id, s := range r.scenes {
		out[id] = model.Scene{Events: slices.Clone(s.Events)}
	}
	return out
}
