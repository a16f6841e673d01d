package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n model.Notification) (int64, error)
}

type Config struct {
	BufferSize       int
	DropWarnInterval time.Duration
	WriteTimeout     time.Duration
}

type Stats struct {
	RecordedTotal  uint64
	PersistedTotal uint64
	DroppedTotal   uint64
	FailedTotal    uint64
}

// Logger mirrors notifications to slog and persists them on a worker
// goroutine. Record never blocks; a full backlog drops the notification.
type Logger struct {
	cfg   Config
	log   *slog.Logger
	store Store
	queue chan model.Notification

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	recordedTotal  atomic.Uint64
	persistedTotal atomic.Uint64
	droppedTotal   atomic.Uint64
	failedTotal    atomic.Uint64
	lastDropLog    atomic.Int64
}

func New(log *slog.Logger, store Store, cfg Config) *Logger {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	l := &Logger{
		cfg:   cfg,
		log:   log,
		store: store,
		queue: make(chan model.Notification, cfg.BufferSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) Record(n model.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	l.recordedTotal.Add(1)
	attrs := []any{"kind", string(n.Kind)}
	if n.Event != nil {
		attrs = append(attrs, "item_id", n.Event.ID)
	}
	l.log.Log(context.Background(), levelFor(n.Kind), n.Message, attrs...)

	if l.store == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- n:
	default:
		l.reportDrop()
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for n := range l.queue {
		l.write(n)
	}
}

func (l *Logger) write(n model.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()
	if _, err := l.store.InsertNotification(ctx, n); err != nil {
		l.failedTotal.Add(1)
		l.log.Warn("persist notification failed", "err", err)
		return
	}
	l.persistedTotal.Add(1)
}

func (l *Logger) reportDrop() {
	l.droppedTotal.Add(1)
	now := time.Now().UnixNano()
	next := l.lastDropLog.Load()
	if next == 0 || now >= next {
		if l.lastDropLog.CompareAndSwap(next, now+l.cfg.DropWarnInterval.Nanoseconds()) {
			l.log.Warn("notification backlog full, dropping", "dropped_total", l.droppedTotal.Load())
		}
	}
}

// Close stops accepting notifications and waits for the backlog to drain.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) Stats() Stats {
	return Stats{
		RecordedTotal:  l.recordedTotal.Load(),
		PersistedTotal: l.persistedTotal.Load(),
		DroppedTotal:   l.droppedTotal.Load(),
		FailedTotal:    l.failedTotal.Load(),
	}
}

func levelFor(kind model.NotificationKind) slog.Level {
	switch kind {
	case model.NotificationError:
		return slog.LevelError
	case model.NotificationWarning:
		return slog.LevelWarn
	case model.NotificationCurrent, model.NotificationUpdate:
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// NewSlog builds the process logger. format is "text" or "json".
func NewSlog(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
