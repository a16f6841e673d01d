package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
	"github.com/g960059/showrunner/internal/testutil"
)

type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	got     []model.Notification
}

func (s *blockingStore) InsertNotification(_ context.Context, n model.Notification) (int64, error) {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return int64(len(s.got)), nil
}

type failingStore struct{}

func (failingStore) InsertNotification(context.Context, model.Notification) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRecordPersistsToStore(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	var buf bytes.Buffer
	log, err := NewSlog(&buf, "debug", "text")
	if err != nil {
		t.Fatalf("new slog: %v", err)
	}
	logger := New(log, store, Config{})
	event := model.NewPair(10, "Lights Up", model.DisplayControl{})
	logger.Record(model.Notification{Kind: model.NotificationCurrent, Message: "Lights Up", Event: &event})
	logger.Record(model.Notification{Kind: model.NotificationError, Message: "All Stop"})
	if err := logger.Close(ctx); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	rows, err := store.ListNotifications(ctx, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(rows) != 2 || rows[0].Message != "Lights Up" || rows[1].Kind != model.NotificationError {
		t.Fatalf("unexpected rows %+v", rows)
	}
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "msg=\"All Stop\"") {
		t.Fatalf("expected error mirrored to slog, got %q", out)
	}
	if stats := logger.Stats(); stats.PersistedTotal != 2 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRecordDropsWhenBacklogFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	var buf bytes.Buffer
	log, _ := NewSlog(&buf, "info", "text")
	logger := New(log, store, Config{BufferSize: 1})
	for i := 0; i < 5; i++ {
		logger.Record(model.Notification{Kind: model.NotificationUpdate, Message: "tick"})
	}
	if dropped := logger.Stats().DroppedTotal; dropped == 0 {
		t.Fatalf("expected drops with a blocked store")
	}
	close(store.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := logger.Close(ctx); err != nil {
		t.Fatalf("close logger: %v", err)
	}
	stats := logger.Stats()
	if stats.PersistedTotal+stats.DroppedTotal != 5 {
		t.Fatalf("expected every record persisted or dropped, got %+v", stats)
	}
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewSlog(&buf, "info", "json")
	logger := New(log, failingStore{}, Config{})
	logger.Record(model.Notification{Kind: model.NotificationWarning, Message: "status rejected"})
	if err := logger.Close(context.Background()); err != nil {
		t.Fatalf("close logger: %v", err)
	}
	if failed := logger.Stats().FailedTotal; failed != 1 {
		t.Fatalf("expected one failed write, got %d", failed)
	}
	if !strings.Contains(buf.String(), "persist notification failed") {
		t.Fatalf("expected failure logged, got %q", buf.String())
	}
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	logger := New(nil, failingStore{}, Config{})
	if err := logger.Close(context.Background()); err != nil {
		t.Fatalf("close logger: %v", err)
	}
	logger.Record(model.Notification{Kind: model.NotificationUpdate, Message: "late"})
	if failed := logger.Stats().FailedTotal; failed != 0 {
		t.Fatalf("late record should not reach the store")
	}
}

func TestNewSlogRejectsUnknownFormat(t *testing.T) {
	if _, err := NewSlog(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := NewSlog(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
