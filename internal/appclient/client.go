package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/g960059/showrunner/internal/api"
)

type Client struct {
	baseURL      string
	socketPath   string
	client       *http.Client
	unaryTimeout time.Duration
}

const defaultUnaryTimeout = 10 * time.Second

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	c := NewWithClient("http://unix", &http.Client{Transport: transport})
	c.socketPath = socketPath
	return c
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

var ErrStreamPayloadInvalid = errors.New("stream payload invalid")

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	if code != "" && message != "" {
		return fmt.Sprintf("%s: %s", code, message)
	}
	if code != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, code)
		}
		return code
	}
	if message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "http error"
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var resp api.HealthResponse
	err := c.call(ctx, http.MethodGet, "/v1/health", nil, nil, &resp)
	return resp, err
}

// Command posts one command envelope to the control loop.
func (c *Client) Command(ctx context.Context, req api.CommandRequest) (api.CommandResponse, error) {
	var resp api.CommandResponse
	err := c.call(ctx, http.MethodPost, "/v1/commands", nil, req, &resp)
	return resp, err
}

func (c *Client) LoadConfig(ctx context.Context, req api.ConfigLoadRequest) (api.ConfigLoadResponse, error) {
	var resp api.ConfigLoadResponse
	err := c.call(ctx, http.MethodPost, "/v1/config/load", nil, req, &resp)
	return resp, err
}

func (c *Client) SaveConfig(ctx context.Context, req api.ConfigSaveRequest) (api.CommandResponse, error) {
	var resp api.CommandResponse
	err := c.call(ctx, http.MethodPost, "/v1/config/save", nil, req, &resp)
	return resp, err
}

// Notifications returns the newest limit notifications, oldest first. A zero
// limit uses the daemon default.
func (c *Client) Notifications(ctx context.Context, limit int) (api.NotificationsEnvelope, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var env api.NotificationsEnvelope
	err := c.call(ctx, http.MethodGet, "/v1/notifications", query, nil, &env)
	return env, err
}

func (c *Client) Configs(ctx context.Context) (api.ConfigsEnvelope, error) {
	var env api.ConfigsEnvelope
	err := c.call(ctx, http.MethodGet, "/v1/configs", nil, nil, &env)
	return env, err
}

type WatchOptions struct {
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
	// Once returns after the first connection ends instead of reconnecting.
	Once bool
}

// Watch streams update envelopes from /v1/ui to onUpdate, reconnecting with
// backoff until ctx is done or onUpdate returns an error.
func (c *Client) Watch(ctx context.Context, opts WatchOptions, onUpdate func(api.UpdateEnvelope) error) error {
	minBackoff := opts.RetryMinBackoff
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	maxBackoff := opts.RetryMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 4 * time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	backoff := minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		connected, err := c.watchOnce(ctx, onUpdate)
		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			return cbErr.err
		}
		if errors.Is(err, ErrStreamPayloadInvalid) {
			return err
		}
		if opts.Once {
			return err
		}
		if connected {
			backoff = minBackoff
		}
		if waitErr := sleepWithContext(ctx, backoff); waitErr != nil {
			return waitErr
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }

func (c *Client) watchOnce(ctx context.Context, onUpdate func(api.UpdateEnvelope) error) (bool, error) {
	conn, err := c.dialUI(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close() //nolint:errcheck
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, fmt.Errorf("read ui stream: %w", err)
		}
		var env api.UpdateEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return true, fmt.Errorf("%w: %v", ErrStreamPayloadInvalid, err)
		}
		if env.Type == "" {
			continue
		}
		if onUpdate == nil {
			continue
		}
		if err := onUpdate(env); err != nil {
			return true, &callbackError{err: err}
		}
	}
}

// streamFrame covers every message /v1/ui sends: updates, command acks and
// error envelopes.
type streamFrame struct {
	api.UpdateEnvelope
	RequestID string        `json:"request_id,omitempty"`
	Accepted  *bool         `json:"accepted,omitempty"`
	Error     *api.APIError `json:"error,omitempty"`
}

// Query sends a request command over /v1/ui and waits for the matching
// reply. Replies are broadcast, so frames for other request ids are skipped.
func (c *Client) Query(ctx context.Context, req api.CommandRequest) (api.Reply, error) {
	req.Type = api.CommandQuery
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	conn, err := c.dialUI(ctx)
	if err != nil {
		return api.Reply{}, err
	}
	defer conn.Close() //nolint:errcheck
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return api.Reply{}, fmt.Errorf("send request: %w", err)
	}
	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return api.Reply{}, ctx.Err()
			}
			return api.Reply{}, fmt.Errorf("read reply: %w", err)
		}
		switch {
		case frame.Error != nil:
			return api.Reply{}, &RequestError{Code: frame.Error.Code, Message: frame.Error.Message}
		case frame.Accepted != nil && !*frame.Accepted && frame.RequestID == req.RequestID:
			return api.Reply{}, &RequestError{Code: api.CodeUnavailable, Message: "control loop is not running"}
		case frame.Type == api.UpdateReply && frame.Reply != nil && frame.Reply.RequestID == req.RequestID:
			return *frame.Reply, nil
		}
	}
}

func (c *Client) dialUI(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.unaryTimeout}
	if c.socketPath != "" {
		socketPath := c.socketPath
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
	}
	u := c.baseURL + "/v1/ui"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &RequestError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dial ui stream: %w", err)
	}
	return conn, nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	payload, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
			return nil, &RequestError{
				StatusCode: resp.StatusCode,
				Code:       er.Error.Code,
				Message:    er.Error.Message,
			}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
