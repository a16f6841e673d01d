package actor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/testutil"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []model.ItemID
}

func (b *recordingBroadcaster) Broadcast(id model.ItemID, _ *uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, id)
	return nil
}

func (b *recordingBroadcaster) Sent() []model.ItemID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ItemID(nil), b.sent...)
}

type recordingRecorder struct {
	mu  sync.Mutex
	got []model.Notification
}

func (r *recordingRecorder) Record(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingRecorder) Kind(kind model.NotificationKind) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.got {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	t    *testing.T
	loop *Loop
	sink *ChannelSink
	bc   *recordingBroadcaster
	rec  *recordingRecorder
}

func newHarness(t *testing.T, cfg *model.Configuration, extra ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		sink: NewChannelSink(1024),
		bc:   &recordingBroadcaster{},
		rec:  &recordingRecorder{},
	}
	opts := Options{
		Sink:             h.sink,
		Recorder:         h.rec,
		Broadcaster:      h.bc,
		CheckSceneOnFire: true,
		CoalesceDelay:    DefaultCoalesceDelay,
	}
	for _, fn := range extra {
		fn(&opts)
	}
	h.loop = New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	if cfg != nil {
		h.loop.Post(LoadConfig{Config: cfg, Source: "sample"})
		h.sync()
	}
	return h
}

// next reads updates until match accepts one.
func (h *harness) next(match func(Update) bool) Update {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-h.sink.Updates():
			if match(u) {
				return u
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for update")
			return nil
		}
	}
}

// sync waits until every command posted so far has been handled and returns
// the updates emitted in the meantime.
func (h *harness) sync() []Update {
	h.t.Helper()
	tag := NewRequester(RequesterClient)
	h.loop.Post(Request{ReplyTo: tag, Query: Query{Kind: QueryDescription, Item: testutil.SceneLobby}})
	var seen []Update
	h.next(func(u Update) bool {
		if r, ok := u.(QueryReply); ok && r.ReplyTo == tag {
			return true
		}
		seen = append(seen, u)
		return false
	})
	return seen
}

func notifies(updates []Update) []string {
	var out []string
	for _, u := range updates {
		if n, ok := u.(Notify); ok {
			out = append(out, n.Message)
		}
	}
	return out
}

func TestQueuedEventFiresInScene(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Queue{Event: testutil.EventLights, Delay: 0})

	got := h.next(func(u Update) bool { _, ok := u.(Notify); return ok }).(Notify)
	if got.Message != "Event: Lights Up" {
		t.Fatalf("unexpected notify %q", got.Message)
	}
	if extra := notifies(h.sync()); len(extra) != 0 {
		t.Fatalf("expected exactly one notify, also got %v", extra)
	}
	if sent := h.bc.Sent(); len(sent) != 1 || sent[0] != testutil.EventLights {
		t.Fatalf("expected fired event broadcast once, got %v", sent)
	}
	if errs := h.rec.Kind(model.NotificationWarning); len(errs) != 0 {
		t.Fatalf("unexpected warnings %+v", errs)
	}

	h.loop.Post(Request{ReplyTo: NewRequester(RequesterStatus), Query: Query{Kind: QueryDescription, Item: testutil.StatusDoor}})
	for _, u := range h.sync() {
		if _, ok := u.(StatusChanged); ok {
			t.Fatalf("status must not change for a comment-only event")
		}
	}
}

func TestTriggerOutsideSceneIsSkipped(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(SceneChange{Scene: testutil.SceneFinale})
	h.sync()

	h.loop.Post(Trigger{Event: testutil.EventLights, CheckScene: true, Broadcast: true})
	seen := h.sync()
	if msgs := notifies(seen); len(msgs) != 0 {
		t.Fatalf("skipped event must not notify, got %v", msgs)
	}
	for _, u := range seen {
		if n, ok := u.(NotificationAppended); ok {
			t.Fatalf("skipped event must not log, got %+v", n.Notification)
		}
	}
	if sent := h.bc.Sent(); len(sent) != 0 {
		t.Fatalf("skipped event must not broadcast, got %v", sent)
	}
}

func TestAllStopClearsQueueAndBroadcastsOnce(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Queue{Event: testutil.EventLights, Delay: time.Hour})
	h.loop.Post(Queue{Event: testutil.EventSound, Delay: 2 * time.Hour})
	h.loop.Post(AllStop{})

	var last TimelineRefresh
	for _, u := range h.sync() {
		if tl, ok := u.(TimelineRefresh); ok {
			last = tl
		}
	}
	if len(last.Upcoming) != 0 {
		t.Fatalf("expected empty timeline after all stop, got %+v", last.Upcoming)
	}
	if sent := h.bc.Sent(); len(sent) != 1 || sent[0] != model.AllStopID {
		t.Fatalf("expected one all-stop broadcast, got %v", sent)
	}
	if errs := h.rec.Kind(model.NotificationError); len(errs) != 1 {
		t.Fatalf("expected one error notification, got %+v", errs)
	}
}

func TestAllStopWithoutConfiguration(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.Post(AllStop{})
	h.sync()
	if sent := h.bc.Sent(); len(sent) != 1 || sent[0] != model.AllStopID {
		t.Fatalf("expected all-stop broadcast without configuration, got %v", sent)
	}
}

func TestAllStopFromNetworkIsNotRebroadcast(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(AllStop{FromNetwork: true})
	h.sync()
	if sent := h.bc.Sent(); len(sent) != 0 {
		t.Fatalf("network all-stop must not be rebroadcast, got %v", sent)
	}
	if errs := h.rec.Kind(model.NotificationError); len(errs) != 1 {
		t.Fatalf("expected one error notification, got %+v", errs)
	}
}

func TestRescheduleUnknownStartTimeLeavesQueue(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Queue{Event: testutil.EventLights, Delay: time.Hour})
	var before TimelineRefresh
	for _, u := range h.sync() {
		if tl, ok := u.(TimelineRefresh); ok {
			before = tl
		}
	}
	if len(before.Upcoming) != 1 {
		t.Fatalf("expected one pending event, got %+v", before.Upcoming)
	}

	delay := time.Minute
	wrongStart := before.Upcoming[0].StartTime.Add(-time.Second)
	h.loop.Post(Reschedule{Event: testutil.EventLights, StartTime: wrongStart, NewDelay: &delay})
	h.loop.Post(ShiftAll{Adjustment: 0})
	var after TimelineRefresh
	for _, u := range h.sync() {
		if tl, ok := u.(TimelineRefresh); ok {
			after = tl
		}
	}
	if len(after.Upcoming) != 1 || !after.Upcoming[0].FireAt.Equal(before.Upcoming[0].FireAt) {
		t.Fatalf("queue changed after failed reschedule: %+v", after.Upcoming)
	}
	warnings := h.rec.Kind(model.NotificationWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "not found") {
		t.Fatalf("expected one not found warning, got %+v", warnings)
	}
}

func TestRescheduleMovesMatchingEntry(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Queue{Event: testutil.EventLights, Delay: time.Hour})
	var before TimelineRefresh
	for _, u := range h.sync() {
		if tl, ok := u.(TimelineRefresh); ok {
			before = tl
		}
	}
	start := before.Upcoming[0].StartTime
	delay := 2 * time.Hour
	h.loop.Post(Reschedule{Event: testutil.EventLights, StartTime: start, NewDelay: &delay})
	var after TimelineRefresh
	for _, u := range h.sync() {
		if tl, ok := u.(TimelineRefresh); ok {
			after = tl
		}
	}
	if len(after.Upcoming) != 1 || !after.Upcoming[0].FireAt.Equal(start.Add(delay)) {
		t.Fatalf("expected entry moved to start+2h, got %+v", after.Upcoming)
	}
}

func TestMutatingCommandWithoutConfiguration(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.Post(Trigger{Event: testutil.EventLights, CheckScene: true, Broadcast: true})
	h.loop.Post(StatusChange{Status: testutil.StatusDoor, State: testutil.StateOpen})
	h.sync()
	errs := h.rec.Kind(model.NotificationError)
	if len(errs) != 2 {
		t.Fatalf("expected one error per dropped command, got %+v", errs)
	}
	if !strings.Contains(errs[0].Message, model.ErrNoActiveConfiguration.Error()) {
		t.Fatalf("unexpected error message %q", errs[0].Message)
	}
	if sent := h.bc.Sent(); len(sent) != 0 {
		t.Fatalf("dropped command must not broadcast, got %v", sent)
	}
}

func TestCascadeRunsAfterQueuedCommands(t *testing.T) {
	cfg := testutil.SampleConfiguration()
	cfg.Events[testutil.EventLights] = model.EventDetail{
		model.QueueEvent{Event: testutil.EventCurtain, Delay: 0},
	}
	h := newHarness(t, cfg)
	h.loop.Post(Trigger{Event: testutil.EventLights, CheckScene: true, Broadcast: false})
	h.loop.Post(Trigger{Event: testutil.EventUnlock, CheckScene: true, Broadcast: false})

	var order []string
	h.next(func(u Update) bool {
		if n, ok := u.(Notify); ok {
			order = append(order, n.Message)
		}
		return len(order) == 3
	})
	want := []string{"Event: Lights Up", "Event: Unlock", "Event: Curtain"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected dispatch order %v", order)
		}
	}
	refresh := h.next(func(u Update) bool { _, ok := u.(WindowRefresh); return ok }).(WindowRefresh)
	if refresh.Window.Scene.ID != testutil.SceneFinale {
		t.Fatalf("expected scene change to finale, got %d", refresh.Window.Scene.ID)
	}
}

func TestRejectedStatusChangeWarnsOnce(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(StatusChange{Status: testutil.StatusDoor, State: 999})
	h.sync()
	warnings := h.rec.Kind(model.NotificationWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, model.ErrInvalidTransition.Error()) {
		t.Fatalf("expected one invalid transition warning, got %+v", warnings)
	}
}

func TestStatusChangeEmitsUpdate(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Trigger{Event: testutil.EventUnlock, CheckScene: true, Broadcast: false})
	var status *StatusChanged
	var input *InputRequested
	for _, u := range h.sync() {
		switch v := u.(type) {
		case StatusChanged:
			status = &v
		case InputRequested:
			input = &v
		}
	}
	if status == nil || status.Status.ID != testutil.StatusDoor || status.State.Description.Text != "Open" {
		t.Fatalf("unexpected status update %+v", status)
	}
	if input == nil || input.Prompt != "Who opened the door?" || input.Event.ID != testutil.EventUnlock {
		t.Fatalf("unexpected input request %+v", input)
	}

	h.loop.Post(UserInput{Event: testutil.EventUnlock, Text: "Alice"})
	h.sync()
	updates := h.rec.Kind(model.NotificationUpdate)
	if last := updates[len(updates)-1]; last.Message != "Unlock: Alice" {
		t.Fatalf("unexpected input notification %q", last.Message)
	}
}

func TestEditModeReturnsDetail(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(EditMode{Enabled: true})
	h.loop.Post(Trigger{Event: testutil.EventCurtain, CheckScene: true, Broadcast: true, Manual: true})
	var reply *QueryReply
	seen := h.sync()
	for _, u := range seen {
		if r, ok := u.(QueryReply); ok && r.ReplyTo.Kind == RequesterEditor {
			reply = &r
		}
	}
	if reply == nil || !reply.Found || len(reply.Detail) != 1 {
		t.Fatalf("expected detail reply, got %+v", reply)
	}
	if msgs := notifies(seen); len(msgs) != 0 {
		t.Fatalf("edit mode must not dispatch, got %v", msgs)
	}
	if sent := h.bc.Sent(); len(sent) != 0 {
		t.Fatalf("edit mode must not broadcast, got %v", sent)
	}
}

func TestEditModeLetsQueuedAndNetworkEventsFire(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(EditMode{Enabled: true})
	h.loop.Post(Queue{Event: testutil.EventLights, Delay: 50 * time.Millisecond})

	diverted := false
	got := h.next(func(u Update) bool {
		if r, ok := u.(QueryReply); ok && r.ReplyTo.Kind == RequesterEditor {
			diverted = true
		}
		_, ok := u.(Notify)
		return ok
	}).(Notify)
	if got.Message != "Event: Lights Up" {
		t.Fatalf("unexpected notify %q", got.Message)
	}
	if diverted {
		t.Fatalf("queued event was turned into an editor reply")
	}
	if sent := h.bc.Sent(); len(sent) != 1 || sent[0] != testutil.EventLights {
		t.Fatalf("expected queued event broadcast once, got %v", sent)
	}

	h.loop.Post(Trigger{Event: testutil.EventUnlock, CheckScene: true, Broadcast: false})
	seen := h.sync()
	if msgs := notifies(seen); len(msgs) != 1 || msgs[0] != "Event: Unlock" {
		t.Fatalf("expected network event to fire in edit mode, got %v", msgs)
	}
	for _, u := range seen {
		if r, ok := u.(QueryReply); ok && r.ReplyTo.Kind == RequesterEditor {
			t.Fatalf("network event was turned into an editor reply")
		}
	}
}

func TestRequestEchoesRequester(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	tag := NewRequester(RequesterEditor)
	h.loop.Post(Request{ReplyTo: tag, Query: Query{Kind: QueryDetail, Item: testutil.EventUnlock}})
	reply := h.next(func(u Update) bool {
		r, ok := u.(QueryReply)
		return ok && r.ReplyTo == tag
	}).(QueryReply)
	if !reply.Found || reply.Item.Description.Text != "Unlock" || len(reply.Detail) != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestEditDeleteLeavesPendingNoOp(t *testing.T) {
	h := newHarness(t, testutil.SampleConfiguration())
	h.loop.Post(Edit{Actions: []EditAction{DeleteItem{ID: testutil.EventLights}}})
	h.loop.Post(Trigger{Event: testutil.EventLights, CheckScene: false, Broadcast: true})
	seen := h.sync()
	if msgs := notifies(seen); len(msgs) != 0 {
		t.Fatalf("deleted event must not notify, got %v", msgs)
	}
	if sent := h.bc.Sent(); len(sent) != 0 {
		t.Fatalf("deleted event must not broadcast, got %v", sent)
	}
}

func TestEditModifiesLiveConfiguration(t *testing.T) {
	saver := &recordingSaver{}
	h := newHarness(t, testutil.SampleConfiguration(), func(o *Options) { o.Saver = saver })
	h.loop.Post(Edit{Actions: []EditAction{
		ModifyEvent{Pair: model.NewPair(30, "Blackout", model.DisplayControl{}), Detail: model.EventDetail{model.Comment{Text: "dark"}}},
		ModifyScene{Pair: model.NewPair(testutil.SceneLobby, "Lobby", model.Hidden{}), Scene: model.Scene{Events: []model.ItemID{30}}},
		ModifyStatus{Pair: model.NewPair(testutil.StatusDoor, "Door", model.LabelControl{}), Status: model.Status{Current: 5, Allowed: []model.ItemID{1}}},
	}})
	h.loop.Post(Trigger{Event: 30, CheckScene: true, Broadcast: false})
	h.loop.Post(SaveConfig{Label: "after edit"})
	seen := h.sync()
	if msgs := notifies(seen); len(msgs) != 1 || msgs[0] != "Event: Blackout" {
		t.Fatalf("expected edited event to fire, got %v", msgs)
	}
	if warnings := h.rec.Kind(model.NotificationWarning); len(warnings) != 1 {
		t.Fatalf("expected invalid status edit rejected once, got %+v", warnings)
	}
	cfg := saver.Last()
	if cfg == nil {
		t.Fatalf("expected saved configuration")
	}
	if _, ok := cfg.Events[30]; !ok {
		t.Fatalf("saved configuration missing edited event")
	}
	if cfg.Statuses[testutil.StatusDoor].Current != testutil.StateClosed {
		t.Fatalf("rejected status edit leaked into configuration")
	}
}

func TestEditCannotDeleteCurrentScene(t *testing.T) {
	saver := &recordingSaver{}
	h := newHarness(t, testutil.SampleConfiguration(), func(o *Options) { o.Saver = saver })
	h.loop.Post(Edit{Actions: []EditAction{DeleteItem{ID: testutil.SceneLobby}}})
	h.loop.Post(SaveConfig{Label: "after delete"})
	h.sync()

	warnings := h.rec.Kind(model.NotificationWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, model.ErrSceneActive.Error()) {
		t.Fatalf("expected active scene warning, got %+v", warnings)
	}
	cfg := saver.Last()
	if cfg == nil {
		t.Fatalf("expected saved configuration")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("saved configuration cannot be reloaded: %v", err)
	}
	if cfg.DefaultScene != testutil.SceneLobby {
		t.Fatalf("expected lobby kept as default scene, got %d", cfg.DefaultScene)
	}
}

func TestUndrainedSinkDoesNotStallLoop(t *testing.T) {
	sink := NewChannelSink(1)
	bc := &recordingBroadcaster{}
	rec := &recordingRecorder{}
	loop := New(Options{Sink: sink, Recorder: rec, Broadcaster: bc, CheckSceneOnFire: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	loop.Post(LoadConfig{Config: testutil.SampleConfiguration(), Source: "sample"})
	const fired = 20
	for i := 0; i < fired; i++ {
		loop.Post(Trigger{Event: testutil.EventLights, CheckScene: true, Broadcast: true})
	}
	loop.Post(UserInput{Event: testutil.EventUnlock, Text: "still here"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		updates := rec.Kind(model.NotificationUpdate)
		if n := len(updates); n > 0 && updates[n-1].Message == "Unlock: still here" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("loop stalled behind a full update channel")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sent := bc.Sent(); len(sent) != fired {
		t.Fatalf("expected %d broadcasts, got %d", fired, len(sent))
	}
	if sink.Dropped() == 0 {
		t.Fatalf("expected dropped updates to be counted")
	}
}

func TestCloseStopsLoop(t *testing.T) {
	loop := New(Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(context.Background())
	}()
	loop.Post(Close{})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop on Close")
	}
	if loop.Post(Redraw{}) {
		t.Fatalf("post after stop should report false")
	}
}

type recordingSaver struct {
	mu   sync.Mutex
	last *model.Configuration
}

func (s *recordingSaver) Save(cfg *model.Configuration, _ SaveConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = cfg
}

func (s *recordingSaver) Last() *model.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
