package model

import (
	"fmt"
	"slices"
	"sort"
)

type Status struct {
	Current ItemID
	Allowed []ItemID
}

// Free reports whether the status accepts any state.
func (s Status) Free() bool {
	return len(s.Allowed) == 0
}

func (s Status) Permits(state ItemID) bool {
	return s.Free() || slices.Contains(s.Allowed, state)
}

func (s Status) Clone() Status {
	return Status{Current: s.Current, Allowed: slices.Clone(s.Allowed)}
}

type Scene struct {
	Events []ItemID
}

func (s Scene) Contains(id ItemID) bool {
	return slices.Contains(s.Events, id)
}

func (s Scene) Clone() Scene {
	return Scene{Events: slices.Clone(s.Events)}
}

// Configuration is an already-parsed show configuration. It is the shape
// accepted on load and produced on save.
type Configuration struct {
	Identifier   uint32
	DefaultScene ItemID
	Items        []ItemPair
	Scenes       map[ItemID]Scene
	Statuses     map[ItemID]Status
	Events       map[ItemID]EventDetail
}

func (c *Configuration) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is nil")
	}
	seen := make(map[ItemID]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ID == AllStopID {
			return fmt.Errorf("item id %d is reserved", AllStopID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate item id %d", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	if _, ok := c.Scenes[c.DefaultScene]; !ok {
		return fmt.Errorf("default scene %d: %w", c.DefaultScene, ErrUnknownScene)
	}
	for id := range c.Scenes {
		if id == AllStopID {
			return fmt.Errorf("scene id %d is reserved", AllStopID)
		}
	}
	for id, st := range c.Statuses {
		if id == AllStopID {
			return fmt.Errorf("status id %d is reserved", AllStopID)
		}
		if !st.Permits(st.Current) {
			return fmt.Errorf("status %d current state %d: %w", id, st.Current, ErrInvalidTransition)
		}
	}
	for id := range c.Events {
		if id == AllStopID {
			return fmt.Errorf("event id %d is reserved", AllStopID)
		}
	}
	return nil
}

// SortedIDs returns map keys in ascending order for deterministic output.
func SortedIDs[V any](m map[ItemID]V) []ItemID {
	ids := make([]ItemID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
