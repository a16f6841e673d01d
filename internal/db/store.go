package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/showrunner/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// NotificationRecord is a persisted notification with its row id.
type NotificationRecord struct {
	ID int64
	model.Notification
}

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) (int64, error) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	var eventID, eventText any
	if n.Event != nil {
		eventID = int64(n.Event.ID)
		eventText = n.Event.Description.Text
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO notifications(kind, message, event_id, event_text, created_at)
VALUES (?, ?, ?, ?, ?)`,
		string(n.Kind), n.Message, eventID, eventText, ts(n.Time),
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("notification id: %w", err)
	}
	return id, nil
}

// ListNotifications returns the newest limit notifications, oldest first.
// A non-positive limit returns every row.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	query := `SELECT notification_id, kind, message, event_id, event_text, created_at FROM notifications ORDER BY notification_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []NotificationRecord
	for rows.Next() {
		var (
			rec       NotificationRecord
			kind      string
			eventID   sql.NullInt64
			eventText sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.Message, &eventID, &eventText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		rec.Kind = model.NotificationKind(kind)
		if rec.Time, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parse notification time: %w", err)
		}
		if eventID.Valid {
			pair := model.NewPair(model.ItemID(eventID.Int64), eventText.String, model.Hidden{})
			rec.Event = &pair
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PurgeNotifications deletes notifications created before cutoff.
func (s *Store) PurgeNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purged rows: %w", err)
	}
	return n, nil
}

// ConfigSnapshot is an encoded configuration saved from the live loop.
type ConfigSnapshot struct {
	SnapshotID string
	Identifier uint32
	Label      string
	Body       []byte
	CreatedAt  time.Time
}

func (s *Store) InsertConfigSnapshot(ctx context.Context, snap ConfigSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO config_snapshots(snapshot_id, identifier, label, body, created_at)
VALUES (?, ?, ?, ?, ?)`,
		snap.SnapshotID, int64(snap.Identifier), snap.Label, snap.Body, ts(snap.CreatedAt),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("config snapshot %s: %w", snap.SnapshotID, ErrDuplicate)
		}
		return fmt.Errorf("insert config snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetConfigSnapshot(ctx context.Context, snapshotID string) (ConfigSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT snapshot_id, identifier, label, body, created_at FROM config_snapshots WHERE snapshot_id = ?`, snapshotID)
	return scanConfigSnapshot(row)
}

// LatestConfigSnapshot returns the most recently saved snapshot.
func (s *Store) LatestConfigSnapshot(ctx context.Context) (ConfigSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT snapshot_id, identifier, label, body, created_at FROM config_snapshots
ORDER BY rowid DESC LIMIT 1`)
	return scanConfigSnapshot(row)
}

// ListConfigSnapshots returns snapshot metadata, newest first. Bodies are
// left empty.
func (s *Store) ListConfigSnapshots(ctx context.Context) ([]ConfigSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT snapshot_id, identifier, label, created_at FROM config_snapshots
ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list config snapshots: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ConfigSnapshot
	for rows.Next() {
		var (
			snap       ConfigSnapshot
			identifier int64
			createdAt  string
		)
		if err := rows.Scan(&snap.SnapshotID, &identifier, &snap.Label, &createdAt); err != nil {
			return nil, fmt.Errorf("scan config snapshot: %w", err)
		}
		snap.Identifier = uint32(identifier)
		if snap.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parse snapshot time: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config snapshots: %w", err)
	}
	return out, nil
}

func scanConfigSnapshot(row *sql.Row) (ConfigSnapshot, error) {
	var (
		snap       ConfigSnapshot
		identifier int64
		createdAt  string
	)
	if err := row.Scan(&snap.SnapshotID, &identifier, &snap.Label, &snap.Body, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConfigSnapshot{}, ErrNotFound
		}
		return ConfigSnapshot{}, fmt.Errorf("scan config snapshot: %w", err)
	}
	snap.Identifier = uint32(identifier)
	var err error
	if snap.CreatedAt, err = parseTS(createdAt); err != nil {
		return ConfigSnapshot{}, fmt.Errorf("parse snapshot time: %w", err)
	}
	return snap, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	return count, nil
}

// tsLayout is fixed width so stored timestamps compare as strings.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
