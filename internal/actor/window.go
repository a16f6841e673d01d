package actor

import (
	"fmt"
	"sort"

	"github.com/g960059/showrunner/internal/model"
)

// Group is one block of buttons in the event window. Label is nil for the
// general group. State and Allowed are set when the group is a status.
type Group struct {
	Label   *model.ItemPair
	State   *model.ItemPair
	Allowed []model.ItemPair
	Events  []model.ItemPair
}

type StatusLabel struct {
	Status model.ItemPair
	State  model.ItemPair
}

type Window struct {
	Scene    model.ItemPair
	Groups   []Group
	Labels   []StatusLabel
	Debug    bool
	EditMode bool
}

type windowSource interface {
	Pair(id model.ItemID) model.ItemPair
	StatusDescription(id model.ItemID) (model.StatusDescription, bool)
	Items() []model.ItemPair
}

// sortEvents places the scene events into groups. Grouped events come first
// in order of first appearance, the general group is always last, and events
// inside a group are ordered by priority.
func sortEvents(events []model.ItemPair, src windowSource, debug bool) []Group {
	var groups []Group
	index := map[model.ItemID]int{}
	var general []model.ItemPair

	addToGroup := func(groupID model.ItemID, event model.ItemPair) {
		if i, ok := index[groupID]; ok {
			groups[i].Events = append(groups[i].Events, event)
			return
		}
		label := src.Pair(groupID)
		g := Group{Label: &label, Events: []model.ItemPair{event}}
		if desc, ok := src.StatusDescription(groupID); ok {
			state := desc.Current
			g.State = &state
			g.Allowed = desc.Allowed
		}
		index[groupID] = len(groups)
		groups = append(groups, g)
	}

	for _, event := range events {
		switch d := event.Description.Display.(type) {
		case model.DisplayControl:
			general = append(general, event)
		case model.DisplayWith:
			addToGroup(d.Group, event)
		case model.DisplayDebug:
			if !debug {
				continue
			}
			if d.Group != nil {
				addToGroup(*d.Group, event)
			} else {
				general = append(general, event)
			}
		case model.LabelControl, model.LabelHidden, model.Hidden, nil:
		default:
			panic(fmt.Sprintf("unhandled display variant %T", d))
		}
	}

	groups = append(groups, Group{Events: general})
	for i := range groups {
		sortByPriority(groups[i].Events)
	}
	return groups
}

func sortByPriority(events []model.ItemPair) {
	sort.SliceStable(events, func(i, j int) bool {
		pi, iok := model.PriorityOf(events[i].Description.Display)
		pj, jok := model.PriorityOf(events[j].Description.Display)
		if iok != jok {
			return iok
		}
		return pi < pj
	})
}

// statusLabels lists the statuses marked to be shown as standalone labels.
func statusLabels(src windowSource) []StatusLabel {
	var labels []StatusLabel
	for _, item := range src.Items() {
		if _, ok := item.Description.Display.(model.LabelControl); !ok {
			continue
		}
		desc, ok := src.StatusDescription(item.ID)
		if !ok {
			continue
		}
		labels = append(labels, StatusLabel{Status: item, State: desc.Current})
	}
	return labels
}
