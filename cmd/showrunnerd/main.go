package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/config"
	"github.com/g960059/showrunner/internal/configfile"
	"github.com/g960059/showrunner/internal/daemon"
	"github.com/g960059/showrunner/internal/db"
	"github.com/g960059/showrunner/internal/dispatch"
	"github.com/g960059/showrunner/internal/logging"
	"github.com/g960059/showrunner/internal/network"
	"github.com/g960059/showrunner/internal/queue"
)

const retentionInterval = time.Hour

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fatal(err)
	}
	flag.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for showrunnerd")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite path")
	flag.StringVar(&cfg.DefaultConfigPath, "config", cfg.DefaultConfigPath, "configuration file to load at startup")
	flag.StringVar(&cfg.BroadcastAddr, "broadcast", cfg.BroadcastAddr, "UDP address events are broadcast to (host:port)")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "UDP address to receive broadcasts on")
	nodeID := flag.Uint("node-id", uint(cfg.NodeID), "identifier of this node on the network")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	flag.Parse()
	cfg.NodeID = uint32(*nodeID)
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	log, err := logging.NewSlog(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		return err
	}

	recorder := logging.New(log.With("component", "notifications"), store, logging.Config{BufferSize: cfg.NotifyBuffer})
	updates := actor.NewChannelSink(cfg.UpdateBuffer)
	hub := daemon.NewHub(log.With("component", "hub"), cfg.ClientBuffer)
	saver := daemon.NewSaver(store, recorder, updates, log.With("component", "saver"))

	var broadcaster dispatch.Broadcaster
	if cfg.BroadcastAddr != "" {
		b, err := network.NewBroadcaster(cfg.BroadcastAddr, cfg.NodeID, log.With("component", "network"))
		if err != nil {
			return err
		}
		defer b.Close() //nolint:errcheck
		broadcaster = b
	}

	policy := queue.DropPast
	if cfg.FireShiftedPast {
		policy = queue.FirePast
	}
	loop := actor.New(actor.Options{
		Sink:             updates,
		Recorder:         recorder,
		Broadcaster:      broadcaster,
		Saver:            saver,
		Logger:           log.With("component", "loop"),
		ShiftPolicy:      policy,
		CheckSceneOnFire: cfg.CheckSceneOnFire,
		CoalesceDelay:    cfg.CoalesceDelay,
	})

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()
	go hub.Run(ctx, updates.Updates())

	if cfg.ListenAddr != "" {
		ln, err := network.Listen(cfg.ListenAddr, cfg.NodeID, log.With("component", "network"))
		if err != nil {
			loop.Close()
			return err
		}
		go func() {
			defer ln.Close() //nolint:errcheck
			if err := daemon.ServeNetwork(ctx, ln, loop, log.With("component", "network")); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("network listener stopped", "err", err)
			}
		}()
	}

	if cfg.DefaultConfigPath != "" {
		if err := preloadConfig(loop, cfg.DefaultConfigPath); err != nil {
			log.Error("startup configuration not loaded", "path", cfg.DefaultConfigPath, "err", err)
		}
	}
	startRetentionLoop(ctx, store, cfg, log)

	srv := daemon.NewServer(cfg, daemon.Deps{Store: store, Loop: loop, Hub: hub, Logger: log.With("component", "server")})
	serveErr := srv.Start(ctx)

	loop.Close()
	<-loopDone
	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := saver.Close(closeCtx); err != nil {
		log.Warn("saver did not drain", "err", err)
	}
	if err := recorder.Close(closeCtx); err != nil {
		log.Warn("notification log did not drain", "err", err)
	}
	return serveErr
}

// preloadConfig reads path and hands it to the loop as the first command.
func preloadConfig(loop daemon.Poster, path string) error {
	cfg, err := configfile.Load(path)
	if err != nil {
		return err
	}
	if !loop.Post(actor.LoadConfig{Config: cfg, Source: path}) {
		return fmt.Errorf("control loop is not running")
	}
	return nil
}

func startRetentionLoop(ctx context.Context, store *db.Store, cfg config.Config, log *slog.Logger) {
	if cfg.NotificationTTL <= 0 {
		return
	}
	run := func() {
		cutoff := time.Now().UTC().Add(-cfg.NotificationTTL)
		n, err := store.PurgeNotifications(ctx, cutoff)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("notification purge failed", "err", err)
			}
			return
		}
		if n > 0 {
			log.Info("purged notifications", "count", n, "before", cutoff)
		}
	}

	run()
	go func() {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "showrunnerd: %v\n", err)
	os.Exit(1)
}
