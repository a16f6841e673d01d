package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

func openTempStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

func TestApplyAndRollbackMigrations(t *testing.T) {
	store, ctx := openTempStore(t)
	db := store.DB()
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}

	mustExist := []string{"notifications", "config_snapshots"}
	for _, table := range mustExist {
		var name string
		if err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}

	if err := RollbackAll(ctx, db); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
	for _, table := range mustExist {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count); err != nil {
			t.Fatalf("count table %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("table %s still exists after rollback", table)
		}
	}
}

func TestNotificationKindConstraint(t *testing.T) {
	store, ctx := openTempStore(t)
	_, err := store.DB().ExecContext(ctx, `INSERT INTO notifications(kind, message, created_at) VALUES ('fatal', 'x', ?)`, ts(time.Now()))
	if err == nil {
		t.Fatalf("expected check constraint to reject unknown kind")
	}
}

func TestInsertAndListNotifications(t *testing.T) {
	store, ctx := openTempStore(t)
	base := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	event := model.NewPair(10, "Lights Up", model.DisplayControl{})
	inputs := []model.Notification{
		{Kind: model.NotificationUpdate, Message: "Loaded configuration show.yaml", Time: base},
		{Kind: model.NotificationCurrent, Message: "Lights Up", Time: base.Add(time.Second), Event: &event},
		{Kind: model.NotificationError, Message: "All Stop", Time: base.Add(2 * time.Second)},
	}
	for _, n := range inputs {
		if _, err := store.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}

	got, err := store.ListNotifications(ctx, 2)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Message != "Lights Up" || got[1].Message != "All Stop" {
		t.Fatalf("expected newest two oldest first, got %q, %q", got[0].Message, got[1].Message)
	}
	if got[0].Event == nil || got[0].Event.ID != 10 || got[0].Event.Description.Text != "Lights Up" {
		t.Fatalf("event pair not restored: %+v", got[0].Event)
	}
	if !got[1].Time.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("time not restored: %v", got[1].Time)
	}

	all, err := store.ListNotifications(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(all))
	}
}

func TestPurgeNotifications(t *testing.T) {
	store, ctx := openTempStore(t)
	base := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		n := model.Notification{Kind: model.NotificationUpdate, Message: "tick", Time: base.Add(time.Duration(i) * time.Hour)}
		if _, err := store.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}
	purged, err := store.PurgeNotifications(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged rows, got %d", purged)
	}
	count, err := store.CountRows(ctx, "notifications")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 remaining row, got %d", count)
	}
}

func TestConfigSnapshots(t *testing.T) {
	store, ctx := openTempStore(t)
	first := ConfigSnapshot{SnapshotID: "snap-1", Identifier: 42, Label: "before show", Body: []byte("identifier: 42\n")}
	second := ConfigSnapshot{SnapshotID: "snap-2", Identifier: 42, Label: "intermission", Body: []byte("identifier: 42\ndefault_scene: 2\n")}
	for _, snap := range []ConfigSnapshot{first, second} {
		if err := store.InsertConfigSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert snapshot: %v", err)
		}
	}
	if err := store.InsertConfigSnapshot(ctx, first); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	latest, err := store.LatestConfigSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if latest.SnapshotID != "snap-2" || string(latest.Body) != string(second.Body) {
		t.Fatalf("unexpected latest snapshot %+v", latest)
	}

	list, err := store.ListConfigSnapshots(ctx)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 2 || list[0].SnapshotID != "snap-2" || list[1].Label != "before show" {
		t.Fatalf("unexpected snapshot list %+v", list)
	}
	if list[0].Body != nil {
		t.Fatalf("list should not load bodies")
	}

	got, err := store.GetConfigSnapshot(ctx, "snap-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got.Identifier != 42 || got.Label != "before show" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if _, err := store.GetConfigSnapshot(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestSnapshotEmptyStore(t *testing.T) {
	store, ctx := openTempStore(t)
	if _, err := store.LatestConfigSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
