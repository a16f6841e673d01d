package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/configfile"
	"github.com/g960059/showrunner/internal/db"
	"github.com/g960059/showrunner/internal/model"
)

type saveJob struct {
	cfg *model.Configuration
	req actor.SaveConfig
}

// Saver persists configuration snapshots off the loop goroutine. Outcomes
// are reported as notifications through the recorder and the update sink.
type Saver struct {
	store    *db.Store
	recorder actor.Recorder
	sink     actor.Sink
	log      *slog.Logger
	clock    func() time.Time

	jobs   chan saveJob
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewSaver(store *db.Store, recorder actor.Recorder, sink actor.Sink, log *slog.Logger) *Saver {
	if log == nil {
		log = slog.Default()
	}
	s := &Saver{
		store:    store,
		recorder: recorder,
		sink:     sink,
		log:      log,
		clock:    time.Now,
		jobs:     make(chan saveJob, 16),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Save implements actor.Saver. It never blocks; a full backlog rejects the
// request with an error notification.
func (s *Saver) Save(cfg *model.Configuration, req actor.SaveConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.jobs <- saveJob{cfg: cfg, req: req}:
	default:
		s.report(model.NotificationError, "Configuration not saved: save backlog is full")
	}
}

func (s *Saver) run() {
	defer close(s.done)
	for job := range s.jobs {
		id, err := s.write(job)
		if err != nil {
			s.log.Error("save configuration", "label", job.req.Label, "err", err)
			s.report(model.NotificationError, fmt.Sprintf("Configuration not saved: %v", err))
			continue
		}
		name := job.req.Label
		if name == "" {
			name = id
		}
		msg := fmt.Sprintf("Configuration saved as %s", name)
		if job.req.Path != "" {
			msg += fmt.Sprintf(" and exported to %s", job.req.Path)
		}
		s.report(model.NotificationUpdate, msg)
	}
}

func (s *Saver) write(job saveJob) (string, error) {
	body, err := configfile.Encode(job.cfg)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.store.InsertConfigSnapshot(ctx, db.ConfigSnapshot{
			SnapshotID: id,
			Identifier: job.cfg.Identifier,
			Label:      job.req.Label,
			Body:       body,
			CreatedAt:  s.clock().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("store snapshot: %w", err)
		}
	}
	if job.req.Path != "" {
		if err := configfile.Save(job.req.Path, job.cfg); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *Saver) report(kind model.NotificationKind, msg string) {
	n := model.Notification{Kind: kind, Message: msg, Time: s.clock()}
	if s.recorder != nil {
		s.recorder.Record(n)
	}
	if s.sink != nil {
		s.sink.Send(actor.NotificationAppended{Notification: n})
	}
}

// Close stops accepting jobs and waits for pending ones to finish.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
