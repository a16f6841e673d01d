package status

import (
	"fmt"
	"slices"

	"github.com/g960059/showrunner/internal/model"
)

// Table holds the current state of every status and validates transitions
// against each status's allowed set.
type Table struct {
	statuses map[model.ItemID]model.Status
}

func NewTable(statuses map[model.ItemID]model.Status) (*Table, error) {
	t := &Table{statuses: make(map[model.ItemID]model.Status, len(statuses))}
	for id, st := range statuses {
		if err := t.Put(id, st); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Has(id model.ItemID) bool {
	_, ok := t.statuses[id]
	return ok
}

func (t *Table) State(id model.ItemID) (model.ItemID, bool) {
	st, ok := t.statuses[id]
	if !ok {
		return 0, false
	}
	return st.Current, true
}

func (t *Table) Allowed(id model.ItemID) []model.ItemID {
	st, ok := t.statuses[id]
	if !ok {
		return nil
	}
	return slices.Clone(st.Allowed)
}

// Set moves status id to state and returns the applied state. Targets
// outside a non-empty allowed set are rejected and leave the state unchanged.
func (t *Table) Set(id, state model.ItemID) (model.ItemID, error) {
	st, ok := t.statuses[id]
	if !ok {
		return 0, fmt.Errorf("status %d: %w", id, model.ErrNotFound)
	}
	if !st.Permits(state) {
		return st.Current, fmt.Errorf("status %d to state %d: %w", id, state, model.ErrInvalidTransition)
	}
	st.Current = state
	t.statuses[id] = st
	return state, nil
}

// Put inserts or replaces a status definition.
func (t *Table) Put(id model.ItemID, st model.Status) error {
	if !st.Permits(st.Current) {
		return fmt.Errorf("status %d current state %d: %w", id, st.Current, model.ErrInvalidTransition)
	}
	t.statuses[id] = st.Clone()
	return nil
}

func (t *Table) Delete(id model.ItemID) {
	delete(t.statuses, id)
}

func (t *Table) IDs() []model.ItemID {
	return model.SortedIDs(t.statuses)
}

func (t *Table) Snapshot() map[model.ItemID]model.Status {
	out := make(map[model.ItemID]model.Status, len(t.statuses))
	for id, st := range t.statuses {
		out[id] = st.Clone()
	}
	return out
}
