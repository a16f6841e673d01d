package queue

import (
	"container/heap"
	"fmt"
	"sort"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

// ShiftPolicy controls what happens to entries that a negative shift moves
// into the past.
type ShiftPolicy int

const (
	// DropPast discards entries whose shifted fire time is before now.
	DropPast ShiftPolicy = iota
	// FirePast clamps such entries to now so they fire on the next drain.
	FirePast
)

// Handle identifies one pending instance. An event id alone is not unique:
// the same event can be pending several times with different start times.
type Handle struct {
	EventID   model.ItemID
	StartTime time.Time
}

type Pending struct {
	EventID   model.ItemID
	StartTime time.Time
	FireAt    time.Time
	seq       uint64
}

// Delay is the total delay the entry was scheduled with.
func (p Pending) Delay() time.Duration {
	return p.FireAt.Sub(p.StartTime)
}

type entries []*Pending

func (h entries) Len() int { return len(h) }

func (h entries) Less(i, j int) bool {
	if !h[i].FireAt.Equal(h[j].FireAt) {
		return h[i].FireAt.Before(h[j].FireAt)
	}
	return h[i].seq < h[j].seq
}

func (h entries) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entries) Push(x any) { *h = append(*h, x.(*Pending)) }

func (h *entries) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the pending-event timeline. It is not safe for concurrent use;
// the actor loop is its only caller.
type Queue struct {
	heap     entries
	nextSeq  uint64
	policy   ShiftPolicy
	upcoming []Pending
	dirty    bool
}

func New(policy ShiftPolicy) *Queue {
	return &Queue{policy: policy, dirty: true}
}

func (q *Queue) Len() int {
	return len(q.heap)
}

// Schedule inserts an entry firing at now+delay. Negative delays are treated as zero.
func (q *Queue) Schedule(id model.ItemID, delay time.Duration, now time.Time) Handle {
	if delay < 0 {
		delay = 0
	}
	start := now.Round(0)
	p := &Pending{
		EventID:   id,
		StartTime: start,
		FireAt:    start.Add(delay),
		seq:       q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.heap, p)
	q.dirty = true
	return Handle{EventID: id, StartTime: start}
}

// Reschedule moves the entry matching id and startTime so that it fires at
// startTime+newDelay, or cancels it when newDelay is nil.
func (q *Queue) Reschedule(id model.ItemID, startTime time.Time, newDelay *time.Duration) error {
	idx := q.find(id, startTime)
	if idx < 0 {
		return fmt.Errorf("pending event %d started %s: %w", id, startTime.Format(time.RFC3339Nano), model.ErrNotFound)
	}
	if newDelay == nil {
		heap.Remove(&q.heap, idx)
	} else {
		delay := *newDelay
		if delay < 0 {
			delay = 0
		}
		p := q.heap[idx]
		p.FireAt = p.StartTime.Add(delay)
		p.seq = q.nextSeq
		q.nextSeq++
		heap.Fix(&q.heap, idx)
	}
	q.dirty = true
	return nil
}

// Cancel removes every pending instance of id and reports how many were removed.
func (q *Queue) Cancel(id model.ItemID) int {
	kept := q.heap[:0]
	removed := 0
	for _, p := range q.heap {
		if p.EventID == id {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = kept
	if removed > 0 {
		heap.Init(&q.heap)
		q.dirty = true
	}
	return removed
}

// ShiftAll moves every pending fire time later, or earlier when isNegative.
// Entries that land before now are handled by the queue's ShiftPolicy and
// the number of dropped entries is returned.
func (q *Queue) ShiftAll(adjustment time.Duration, isNegative bool, now time.Time) int {
	if adjustment < 0 {
		adjustment = -adjustment
		isNegative = !isNegative
	}
	kept := q.heap[:0]
	dropped := 0
	for _, p := range q.heap {
		if isNegative {
			p.FireAt = p.FireAt.Add(-adjustment)
		} else {
			p.FireAt = p.FireAt.Add(adjustment)
		}
		if p.FireAt.Before(now) {
			if q.policy == DropPast {
				dropped++
				continue
			}
			p.FireAt = now.Round(0)
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = kept
	heap.Init(&q.heap)
	q.dirty = true
	return dropped
}

func (q *Queue) Clear() {
	q.heap = nil
	q.dirty = true
}

// Next reports the earliest pending fire time.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].FireAt, true
}

// PopReady removes and returns every entry due at now, earliest first with
// insertion order breaking ties.
func (q *Queue) PopReady(now time.Time) []model.ItemID {
	var ready []model.ItemID
	for len(q.heap) > 0 && !q.heap[0].FireAt.After(now) {
		p := heap.Pop(&q.heap).(*Pending)
		ready = append(ready, p.EventID)
	}
	if len(ready) > 0 {
		q.dirty = true
	}
	return ready
}

// Upcoming returns the pending entries soonest first. The snapshot is only
// rebuilt after a mutation and must not be modified by callers.
func (q *Queue) Upcoming() []Pending {
	if !q.dirty {
		return q.upcoming
	}
	out := make([]Pending, 0, len(q.heap))
	for _, p := range q.heap {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].seq < out[j].seq
	})
	q.upcoming = out
	q.dirty = false
	return out
}

func (q *Queue) find(id model.ItemID, startTime time.Time) int {
	for i, p := range q.heap {
		if p.EventID == id && p.StartTime.Equal(startTime) {
			return i
		}
	}
	return -1
}
