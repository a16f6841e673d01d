package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/api"
	"github.com/g960059/showrunner/internal/config"
	"github.com/g960059/showrunner/internal/configfile"
	"github.com/g960059/showrunner/internal/db"
	"github.com/g960059/showrunner/internal/model"
)

const (
	defaultNotificationLimit = 100
	maxRequestBytes          = 4 << 20
)

// Poster accepts loop commands without blocking.
type Poster interface {
	Post(cmd actor.Command) bool
}

type Deps struct {
	Store  *db.Store
	Loop   Poster
	Hub    *Hub
	Logger *slog.Logger
}

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	store       *db.Store
	loop        Poster
	hub         *Hub
	log         *slog.Logger
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, deps Deps) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:   cfg,
		store: deps.Store,
		loop:  deps.Loop,
		hub:   deps.Hub,
		log:   deps.Logger,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Reachable only through the 0600 unix socket.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.hub == nil {
		s.hub = NewHub(s.log, cfg.ClientBuffer)
	}

	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/commands", s.commandsHandler)
	mux.HandleFunc("/v1/config/load", s.configLoadHandler)
	mux.HandleFunc("/v1/config/save", s.configSaveHandler)
	mux.HandleFunc("/v1/notifications", s.notificationsHandler)
	mux.HandleFunc("/v1/configs", s.configsHandler)
	mux.HandleFunc("/v1/ui", s.uiHandler)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()      //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("daemon listening", "socket", s.cfg.SocketPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		// Hijacked websocket connections are not tracked by http.Server.
		s.hub.Close()
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	resp := api.HealthResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
		Clients:       s.hub.Clients(),
	}
	if id, source, ok := s.hub.Active(); ok {
		resp.Identifier = id
		resp.Source = source
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) commandsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.CommandRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cmd, requestID, err := decodeCommand(req)
	if err != nil {
		code := api.CodeBadRequest
		if errors.Is(err, errUnknownCommand) {
			code = api.CodeUnknownCommand
		}
		s.writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	if !s.post(w, cmd) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CommandResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Type:          req.Type,
		RequestID:     requestID,
		Accepted:      true,
	})
}

func (s *Server) configLoadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.ConfigLoadRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cfg, source, status, err := s.resolveConfig(r.Context(), req)
	if err != nil {
		code := api.CodeBadRequest
		switch status {
		case http.StatusNotFound:
			code = api.CodeNotFound
		case http.StatusServiceUnavailable:
			code = api.CodeUnavailable
		case http.StatusInternalServerError:
			code = api.CodeInternal
		}
		s.writeError(w, status, code, err.Error())
		return
	}
	if !s.post(w, actor.LoadConfig{Config: cfg, Source: source}) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ConfigLoadResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Identifier:    cfg.Identifier,
		Source:        source,
	})
}

// resolveConfig parses the configuration named by req off the loop.
func (s *Server) resolveConfig(ctx context.Context, req api.ConfigLoadRequest) (*model.Configuration, string, int, error) {
	sources := 0
	for _, v := range []string{req.Path, req.Body, req.SnapshotID} {
		if strings.TrimSpace(v) != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, "", http.StatusBadRequest, fmt.Errorf("exactly one of path, body or snapshot_id is required")
	}
	switch {
	case req.Path != "":
		cfg, err := configfile.Load(req.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", http.StatusNotFound, err
		}
		if err != nil {
			return nil, "", http.StatusBadRequest, err
		}
		return cfg, req.Path, 0, nil
	case req.Body != "":
		cfg, err := configfile.Decode(strings.NewReader(req.Body))
		if err != nil {
			return nil, "", http.StatusBadRequest, err
		}
		return cfg, "inline", 0, nil
	default:
		return s.loadSnapshot(ctx, strings.TrimSpace(req.SnapshotID))
	}
}

func (s *Server) loadSnapshot(ctx context.Context, id string) (*model.Configuration, string, int, error) {
	if s.store == nil {
		return nil, "", http.StatusServiceUnavailable, fmt.Errorf("snapshot storage is not configured")
	}
	var (
		snap db.ConfigSnapshot
		err  error
	)
	if id == "latest" {
		snap, err = s.store.LatestConfigSnapshot(ctx)
	} else {
		snap, err = s.store.GetConfigSnapshot(ctx, id)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, "", http.StatusNotFound, fmt.Errorf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, "", http.StatusInternalServerError, err
	}
	cfg, err := configfile.Decode(bytes.NewReader(snap.Body))
	if err != nil {
		return nil, "", http.StatusInternalServerError, fmt.Errorf("snapshot %s: %w", snap.SnapshotID, err)
	}
	source := "snapshot " + snap.SnapshotID
	if snap.Label != "" {
		source = fmt.Sprintf("snapshot %s (%s)", snap.Label, snap.SnapshotID)
	}
	return cfg, source, 0, nil
}

func (s *Server) configSaveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.ConfigSaveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if !s.post(w, actor.SaveConfig{Label: req.Label, Path: req.Path}) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CommandResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Type:          api.CommandSave,
		Accepted:      true,
	})
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, api.CodeUnavailable, "notification storage is not configured")
		return
	}
	limit := defaultNotificationLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.store.ListNotifications(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, api.CodeInternal, "failed to list notifications")
		return
	}
	resp := api.NotificationsEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Notifications: make([]api.Notification, 0, len(records)),
	}
	for _, rec := range records {
		resp.Notifications = append(resp.Notifications, toNotification(rec.ID, rec.Notification))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) configsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, api.CodeUnavailable, "snapshot storage is not configured")
		return
	}
	snaps, err := s.store.ListConfigSnapshots(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, api.CodeInternal, "failed to list configurations")
		return
	}
	resp := api.ConfigsEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Configs:       make([]api.ConfigSnapshot, 0, len(snaps)),
	}
	for _, snap := range snaps {
		resp.Configs = append(resp.Configs, api.ConfigSnapshot{
			SnapshotID: snap.SnapshotID,
			Identifier: snap.Identifier,
			Label:      snap.Label,
			CreatedAt:  snap.CreatedAt.UTC(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// uiHandler streams update envelopes and accepts command envelopes on the
// same connection.
func (s *Server) uiHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	client, ok := s.hub.register()
	if !ok {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close() //nolint:errcheck
		return
	}
	s.log.Debug("ui client connected", "client", client.id.String())
	go s.hub.writePump(client, conn)
	defer func() {
		s.hub.unregister(client)
		conn.Close() //nolint:errcheck
		s.log.Debug("ui client disconnected", "client", client.id.String())
	}()

	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var req api.CommandRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.hub.direct(client, s.errorResponse(api.CodeBadRequest, err.Error()))
				continue
			}
			return
		}
		cmd, requestID, err := decodeCommand(req)
		if err != nil {
			code := api.CodeBadRequest
			if errors.Is(err, errUnknownCommand) {
				code = api.CodeUnknownCommand
			}
			s.hub.direct(client, s.errorResponse(code, err.Error()))
			continue
		}
		accepted := s.loop != nil && s.loop.Post(cmd)
		s.hub.direct(client, api.CommandResponse{
			SchemaVersion: api.SchemaVersion,
			GeneratedAt:   time.Now().UTC(),
			Type:          req.Type,
			RequestID:     requestID,
			Accepted:      accepted,
		})
	}
}

func (s *Server) post(w http.ResponseWriter, cmd actor.Command) bool {
	if s.loop == nil || !s.loop.Post(cmd) {
		s.writeError(w, http.StatusServiceUnavailable, api.CodeUnavailable, "control loop is not running")
		return false
	}
	return true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) errorResponse(code, msg string) api.ErrorResponse {
	return api.ErrorResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    code,
			Message: msg,
		},
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, s.errorResponse(code, msg))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	s.writeError(w, http.StatusMethodNotAllowed, api.CodeBadRequest, "method not allowed")
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
